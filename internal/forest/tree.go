package forest

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// leaf marks a terminal node in Node.Feature.
const leaf = -1

// minGain is the smallest squared-error reduction accepted for a split.
const minGain = 1e-12

// Tree is a flattened binary regression tree; Nodes[0] is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Node is either a split (Feature >= 0) or a leaf carrying Value.
type Node struct {
	Feature   int       `json:"f"`
	Threshold float64   `json:"t,omitempty"`
	Left      int       `json:"l,omitempty"`
	Right     int       `json:"r,omitempty"`
	Value     []float64 `json:"v,omitempty"`
}

func (t *Tree) predict(row []float64) []float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Feature == leaf {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func (t *Tree) validate(features, outputs int) error {
	if len(t.Nodes) == 0 {
		return errors.New("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Feature == leaf {
			if len(n.Value) != outputs {
				return fmt.Errorf("leaf %d has %d values, want %d", i, len(n.Value), outputs)
			}
			continue
		}
		if n.Feature < 0 || n.Feature >= features {
			return fmt.Errorf("node %d splits on feature %d of %d", i, n.Feature, features)
		}
		// Children are always appended after their parent.
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d has invalid children %d/%d", i, n.Left, n.Right)
		}
	}
	return nil
}

// grower builds one tree from a bootstrap sample.
type grower struct {
	cols    [][]float64 // feature columns
	targets [][]float64 // target rows
	params  Params
	rng     *rand.Rand
	outputs int
	nodes   []Node
}

type split struct {
	feature   int
	threshold float64
	sse       float64
}

// grow appends the subtree for idx and returns its node index.
func (g *grower) grow(idx []int, depth int) int {
	pos := len(g.nodes)
	g.nodes = append(g.nodes, Node{Feature: leaf})

	sum, sumSq := g.moments(idx)
	parentSSE := sse(sum, sumSq, len(idx))

	if depth >= g.params.MaxDepth || len(idx) < 2*g.params.MinSamplesLeaf || parentSSE <= minGain {
		g.nodes[pos].Value = mean(sum, len(idx))
		return pos
	}

	best, ok := g.bestSplit(idx, parentSSE)
	if !ok {
		g.nodes[pos].Value = mean(sum, len(idx))
		return pos
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	col := g.cols[best.feature]
	for _, i := range idx {
		if col[i] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := g.grow(left, depth+1)
	r := g.grow(right, depth+1)
	g.nodes[pos] = Node{Feature: best.feature, Threshold: best.threshold, Left: l, Right: r}
	return pos
}

// bestSplit scans candidate features for the threshold minimizing the
// summed squared error of both children.
func (g *grower) bestSplit(idx []int, parentSSE float64) (split, bool) {
	features := g.candidateFeatures()
	minLeaf := g.params.MinSamplesLeaf
	n := len(idx)

	best := split{sse: parentSSE - minGain}
	found := false

	sorted := make([]int, n)
	leftSum := make([]float64, g.outputs)
	leftSq := make([]float64, g.outputs)
	totalSum, totalSq := g.moments(idx)
	rightSum := make([]float64, g.outputs)
	rightSq := make([]float64, g.outputs)

	for _, j := range features {
		col := g.cols[j]
		copy(sorted, idx)
		slices.SortStableFunc(sorted, func(a, b int) int {
			switch {
			case col[a] < col[b]:
				return -1
			case col[a] > col[b]:
				return 1
			}
			return 0
		})

		clear(leftSum)
		clear(leftSq)
		for pos := 0; pos < n-1; pos++ {
			y := g.targets[sorted[pos]]
			for o, v := range y {
				leftSum[o] += v
				leftSq[o] += v * v
			}
			nl := pos + 1
			nr := n - nl
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			lo, hi := col[sorted[pos]], col[sorted[pos+1]]
			if lo == hi {
				continue
			}
			floats.SubTo(rightSum, totalSum, leftSum)
			floats.SubTo(rightSq, totalSq, leftSq)
			score := sse(leftSum, leftSq, nl) + sse(rightSum, rightSq, nr)
			if score < best.sse {
				best = split{feature: j, threshold: lo + (hi-lo)/2, sse: score}
				found = true
			}
		}
	}
	return best, found
}

func (g *grower) candidateFeatures() []int {
	d := len(g.cols)
	if g.params.MaxFeatures >= d {
		all := make([]int, d)
		for j := range all {
			all[j] = j
		}
		return all
	}
	perm := g.rng.Perm(d)[:g.params.MaxFeatures]
	slices.Sort(perm)
	return perm
}

// moments returns per-output sums and sums of squares over idx.
func (g *grower) moments(idx []int) (sum, sumSq []float64) {
	sum = make([]float64, g.outputs)
	sumSq = make([]float64, g.outputs)
	for _, i := range idx {
		for o, v := range g.targets[i] {
			sum[o] += v
			sumSq[o] += v * v
		}
	}
	return sum, sumSq
}

// sse is the squared error around the mean, summed over outputs.
func sse(sum, sumSq []float64, n int) float64 {
	if n == 0 {
		return 0
	}
	total := 0.0
	for o := range sum {
		v := sumSq[o] - sum[o]*sum[o]/float64(n)
		if v > 0 {
			total += v
		}
	}
	return total
}

func mean(sum []float64, n int) []float64 {
	out := slices.Clone(sum)
	if n > 0 {
		floats.Scale(1/float64(n), out)
	}
	return out
}
