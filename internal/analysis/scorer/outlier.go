package scorer

import (
	"math"
	"math/rand"
)

// Isolation forest over a dense float64 matrix. Pure Go; the detector is
// seeded so the same matrix and parameters always produce the same scores.

const (
	defaultTrees      = 100
	defaultSampleSize = 256

	// eulerMascheroni appears in the average unsuccessful-search path
	// length of a binary search tree.
	eulerMascheroni = 0.5772156649
)

type isoNode struct {
	// Leaf when left is nil.
	left, right *isoNode
	splitAttr   int
	splitValue  float64
	size        int
}

type isolationForest struct {
	trees      []*isoNode
	sampleSize int
}

// newIsolationForest builds the forest over the given matrix. Rows are the
// samples, columns the features. The seed fixes both subsampling and split
// selection.
func newIsolationForest(matrix [][]float64, trees, sampleSize int, seed int64) *isolationForest {
	if trees <= 0 {
		trees = defaultTrees
	}
	if sampleSize <= 0 || sampleSize > len(matrix) {
		sampleSize = len(matrix)
		if sampleSize > defaultSampleSize {
			sampleSize = defaultSampleSize
		}
	}

	rng := rand.New(rand.NewSource(seed))
	maxDepth := int(math.Ceil(math.Log2(math.Max(2, float64(sampleSize)))))

	f := &isolationForest{sampleSize: sampleSize}
	for i := 0; i < trees; i++ {
		idx := rng.Perm(len(matrix))[:sampleSize]
		sample := make([][]float64, sampleSize)
		for j, k := range idx {
			sample[j] = matrix[k]
		}
		f.trees = append(f.trees, buildIsoTree(sample, 0, maxDepth, rng))
	}
	return f
}

func buildIsoTree(sample [][]float64, depth, maxDepth int, rng *rand.Rand) *isoNode {
	if depth >= maxDepth || len(sample) <= 1 {
		return &isoNode{size: len(sample)}
	}

	cols := len(sample[0])
	// Pick among columns that still vary in this partition.
	varying := make([]int, 0, cols)
	for c := 0; c < cols; c++ {
		lo, hi := columnRange(sample, c)
		if hi > lo {
			varying = append(varying, c)
		}
	}
	if len(varying) == 0 {
		return &isoNode{size: len(sample)}
	}

	attr := varying[rng.Intn(len(varying))]
	lo, hi := columnRange(sample, attr)
	split := lo + rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, row := range sample {
		if row[attr] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &isoNode{size: len(sample)}
	}
	return &isoNode{
		splitAttr:  attr,
		splitValue: split,
		left:       buildIsoTree(left, depth+1, maxDepth, rng),
		right:      buildIsoTree(right, depth+1, maxDepth, rng),
	}
}

func columnRange(sample [][]float64, col int) (lo, hi float64) {
	lo, hi = sample[0][col], sample[0][col]
	for _, row := range sample[1:] {
		v := row[col]
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// score returns the anomaly score of one row in (0, 1); higher means more
// isolated.
func (f *isolationForest) score(row []float64) float64 {
	// A single-sample forest cannot isolate anything; c(1) is 0 and the
	// normalized exponent would be 0/0. Score 0.5 is the indifferent
	// point of the anomaly scale.
	denom := avgPathLength(f.sampleSize)
	if denom == 0 {
		return 0.5
	}
	total := 0.0
	for _, tree := range f.trees {
		total += pathLength(tree, row, 0)
	}
	avg := total / float64(len(f.trees))
	return math.Pow(2, -avg/denom)
}

func pathLength(node *isoNode, row []float64, depth int) float64 {
	if node.left == nil {
		return float64(depth) + avgPathLength(node.size)
	}
	if row[node.splitAttr] < node.splitValue {
		return pathLength(node.left, row, depth+1)
	}
	return pathLength(node.right, row, depth+1)
}

// avgPathLength is c(n), the expected path length of an unsuccessful
// search in a binary tree of n nodes.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerMascheroni) - 2*(fn-1)/fn
}

// medianImpute fills the undefined cells of one column with the median of
// its defined values. Columns with no defined value stay at zero, which
// makes them constant and therefore inert for isolation.
func medianImpute(column []float64, defined []bool) {
	vals := make([]float64, 0, len(column))
	for i, v := range column {
		if defined[i] {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return
	}
	med := median(vals)
	for i := range column {
		if !defined[i] {
			column[i] = med
		}
	}
}

func median(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
