// Package forest implements a random forest of CART regression trees with
// single- or multi-output leaves.
//
// Trees are grown on bootstrap samples with variance-reduction splits. A
// multi-output forest scores splits by the summed squared error across all
// outputs, so every target shares one tree structure. Fitting is sequential
// and fully determined by Params.Seed.
package forest

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Params controls forest growth.
type Params struct {
	NumTrees       int    `yaml:"num_trees" json:"num_trees"`
	MaxDepth       int    `yaml:"max_depth" json:"max_depth"`
	MinSamplesLeaf int    `yaml:"min_samples_leaf" json:"min_samples_leaf"`
	MaxFeatures    int    `yaml:"max_features" json:"max_features"` // 0 considers every feature at each split
	Seed           uint64 `yaml:"seed" json:"seed"`
}

// DefaultParams returns 200 trees of depth at most 12, seeded with 42.
func DefaultParams() Params {
	return Params{
		NumTrees:       200,
		MaxDepth:       12,
		MinSamplesLeaf: 1,
		Seed:           42,
	}
}

// Forest is a fitted ensemble. Its exported fields are the serialized form.
type Forest struct {
	Trees    []Tree `json:"trees"`
	Features int    `json:"features"`
	Outputs  int    `json:"outputs"`
}

// Fit grows a forest on x (rows × features) and y (rows × outputs).
func Fit(x, y mat.Matrix, p Params) (*Forest, error) {
	return FitContext(context.Background(), x, y, p)
}

// FitContext is Fit that stops between trees once ctx is done.
func FitContext(ctx context.Context, x, y mat.Matrix, p Params) (*Forest, error) {
	n, d := x.Dims()
	yn, k := y.Dims()
	switch {
	case n == 0 || d == 0:
		return nil, errors.New("fit forest: empty feature matrix")
	case yn != n:
		return nil, fmt.Errorf("fit forest: %d feature rows but %d target rows", n, yn)
	case k == 0:
		return nil, errors.New("fit forest: no target columns")
	case p.NumTrees <= 0:
		return nil, fmt.Errorf("fit forest: num_trees must be positive, got %d", p.NumTrees)
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = DefaultParams().MaxDepth
	}
	if p.MinSamplesLeaf <= 0 {
		p.MinSamplesLeaf = 1
	}
	if p.MaxFeatures <= 0 || p.MaxFeatures > d {
		p.MaxFeatures = d
	}

	cols := make([][]float64, d)
	for j := range cols {
		cols[j] = mat.Col(nil, j, x)
	}
	targets := make([][]float64, n)
	for i := range targets {
		targets[i] = mat.Row(nil, i, y)
	}

	f := &Forest{
		Trees:    make([]Tree, p.NumTrees),
		Features: d,
		Outputs:  k,
	}
	for t := range f.Trees {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fit forest: stopped after %d of %d trees: %w", t, p.NumTrees, err)
		}
		// One stream per tree keeps each tree reproducible on its own.
		rng := rand.New(rand.NewPCG(p.Seed, uint64(t)))
		sample := make([]int, n)
		for i := range sample {
			sample[i] = rng.IntN(n)
		}
		g := grower{cols: cols, targets: targets, params: p, rng: rng, outputs: k}
		g.grow(sample, 0)
		f.Trees[t] = Tree{Nodes: g.nodes}
	}
	return f, nil
}

// Predict averages the leaf values of every tree for one row.
func (f *Forest) Predict(row []float64) []float64 {
	out := make([]float64, f.Outputs)
	if len(f.Trees) == 0 {
		return out
	}
	for i := range f.Trees {
		floats.Add(out, f.Trees[i].predict(row))
	}
	floats.Scale(1/float64(len(f.Trees)), out)
	return out
}

// PredictMatrix predicts every row of x.
func (f *Forest) PredictMatrix(x mat.Matrix) *mat.Dense {
	n, _ := x.Dims()
	out := mat.NewDense(n, f.Outputs, nil)
	for i := 0; i < n; i++ {
		out.SetRow(i, f.Predict(mat.Row(nil, i, x)))
	}
	return out
}

// NumFeatures returns the input width the forest was trained on.
func (f *Forest) NumFeatures() int { return f.Features }

// NumOutputs returns the number of targets predicted per row.
func (f *Forest) NumOutputs() int { return f.Outputs }

// Validate checks the structural integrity of a decoded forest.
func (f *Forest) Validate() error {
	if f.Features <= 0 || f.Outputs <= 0 {
		return fmt.Errorf("forest: invalid shape %d features × %d outputs", f.Features, f.Outputs)
	}
	if len(f.Trees) == 0 {
		return errors.New("forest: no trees")
	}
	for t := range f.Trees {
		if err := f.Trees[t].validate(f.Features, f.Outputs); err != nil {
			return fmt.Errorf("forest: tree %d: %w", t, err)
		}
	}
	return nil
}
