// Package modelstore persists trained model bundles under a deterministic
// key per target, on local disk or in S3.
package modelstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/couchcryptid/air-quality-model/internal/domain"
)

var targetPattern = regexp.MustCompile(`^[A-Za-z0-9_]+(\+[A-Za-z0-9_]+)*$`)

// Key returns the storage key of a target's bundle.
func Key(target string) string {
	return target + "_rf.json.sz"
}

// ValidTarget reports whether target can name a bundle: one or more
// identifiers joined by "+". Failures wrap domain.ErrInvalidRequest.
func ValidTarget(target string) error {
	if !targetPattern.MatchString(target) {
		return fmt.Errorf("%w: invalid target %q", domain.ErrInvalidRequest, target)
	}
	return nil
}

// Store encodes bundles and keeps them in a Backend.
type Store struct {
	backend Backend
	logger  *slog.Logger
}

// New creates a Store over backend.
func New(backend Backend, logger *slog.Logger) *Store {
	return &Store{backend: backend, logger: logger}
}

// Save writes bundle under the target's key, replacing any previous bundle.
func (s *Store) Save(ctx context.Context, target string, bundle domain.ModelBundle) (string, error) {
	if err := ValidTarget(target); err != nil {
		return "", fmt.Errorf("save model: %w", err)
	}
	if bundle.Target() != target {
		return "", fmt.Errorf("save model: bundle for %q saved under %q", bundle.Target(), target)
	}
	data, err := Encode(bundle)
	if err != nil {
		return "", err
	}
	key := Key(target)
	if err := s.backend.Write(ctx, key, data); err != nil {
		return "", fmt.Errorf("save model %s: %w", key, err)
	}
	s.logger.Debug("model saved", "target", target, "key", key, "bytes", len(data), "version", bundle.Version)
	return key, nil
}

// Load reads the latest bundle for target. A missing bundle is reported as
// *domain.ModelNotFoundError.
func (s *Store) Load(ctx context.Context, target string) (domain.ModelBundle, error) {
	if err := ValidTarget(target); err != nil {
		return domain.ModelBundle{}, fmt.Errorf("load model: %w", err)
	}
	key := Key(target)
	data, err := s.backend.Read(ctx, key)
	if errors.Is(err, ErrObjectNotFound) {
		return domain.ModelBundle{}, &domain.ModelNotFoundError{Target: target, Key: key}
	}
	if err != nil {
		return domain.ModelBundle{}, fmt.Errorf("load model %s: %w", key, err)
	}
	b, err := Decode(data)
	if err != nil {
		return domain.ModelBundle{}, fmt.Errorf("load model %s: %w", key, err)
	}
	return b, nil
}
