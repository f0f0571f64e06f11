package training

import (
	"math"

	"github.com/couchcryptid/air-quality-model/internal/domain"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// evaluate scores predictions against held-out truth column by column.
// R² is undefined for a constant validation target and is reported as 0.
func evaluate(pred, truth *mat.Dense, targets []string, trainRows int) map[string]domain.Metrics {
	n, _ := truth.Dims()
	out := make(map[string]domain.Metrics, len(targets))
	for j, target := range targets {
		est := mat.Col(nil, j, pred)
		obs := mat.Col(nil, j, truth)

		var sq float64
		for i := range obs {
			d := est[i] - obs[i]
			sq += d * d
		}
		rmse := math.Sqrt(sq / float64(n))

		r2 := stat.RSquaredFrom(est, obs, nil)
		if !domain.IsFinite(r2) {
			r2 = 0
		}

		out[target] = domain.Metrics{
			RMSE:           rmse,
			R2:             r2,
			TrainRows:      trainRows,
			ValidationRows: n,
		}
	}
	return out
}
