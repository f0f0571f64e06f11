package training

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// splitIndices partitions 0..n-1 into train and validation index sets with a
// seeded permutation. The validation set gets ceil(n*fraction) rows, clamped
// so both sides keep at least one row. n must be at least 2.
func splitIndices(n int, fraction float64, seed uint64) (train, val []int) {
	nVal := int(math.Ceil(float64(n) * fraction))
	nVal = max(1, min(nVal, n-1))

	perm := rand.New(rand.NewPCG(seed, seed)).Perm(n)
	return perm[nVal:], perm[:nVal]
}

// rows copies the selected rows of m into a new matrix.
func rows(m *mat.Dense, idx []int) *mat.Dense {
	_, c := m.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, r := range idx {
		out.SetRow(i, m.RawRowView(r))
	}
	return out
}
