// Package httpadapter serves health, readiness, metrics and point
// predictions over HTTP.
package httpadapter

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/air-quality-model/internal/domain"
	"github.com/couchcryptid/air-quality-model/internal/prediction"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Predictor answers a single point query.
type Predictor interface {
	Predict(ctx context.Context, req prediction.Request) (prediction.Prediction, error)
}

// Server exposes health, readiness, metrics and prediction HTTP endpoints.
type Server struct {
	httpServer *http.Server
	predictor  Predictor
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and
// /predict routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, predictor Predictor, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		predictor: predictor,
		logger:    logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /predict", s.handlePredict)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// handlePredict serves GET /predict?target=pm25&lat=4.7&lon=-74.1[&at=RFC3339].
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	req, err := parsePredictRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	pred, err := s.predictor.Predict(r.Context(), req)
	switch {
	case err == nil:
		sharedobs.WriteJSON(w, http.StatusOK, pred)
	case errors.Is(err, domain.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrModelNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		s.logger.Error("prediction failed", "error", err, "target", req.Target)
		writeError(w, http.StatusInternalServerError, err)
	}
}

func parsePredictRequest(r *http.Request) (prediction.Request, error) {
	q := r.URL.Query()
	req := prediction.Request{Target: q.Get("target")}

	if v := q.Get("lat"); v != "" {
		lat, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, errors.New("invalid lat")
		}
		req.Lat = &lat
	}
	if v := q.Get("lon"); v != "" {
		lon, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, errors.New("invalid lon")
		}
		req.Lon = &lon
	}
	if v := q.Get("at"); v != "" {
		at, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return req, errors.New("invalid at: want RFC3339")
		}
		req.At = at
	}
	return req, nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}
