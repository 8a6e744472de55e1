package model

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stepData() ([][]float64, []float64) {
	x := make([][]float64, 0, 20)
	y := make([]float64, 0, 20)
	for i := range 20 {
		x = append(x, []float64{float64(i), 0})
		if i < 10 {
			y = append(y, 1)
		} else {
			y = append(y, 5)
		}
	}
	return x, y
}

func allRows(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func TestGrowTree_FindsStep(t *testing.T) {
	x, y := stepData()
	tree := growTree(x, y, allRows(len(y)), treeParams{maxDepth: 3, minSamplesLeaf: 1}, rand.New(rand.NewPCG(1, 1)))

	root := tree.Nodes[0]
	assert.Equal(t, 0, root.Feature)
	assert.Equal(t, 9.5, root.Threshold)
	assert.Equal(t, 1, tree.Depth())
	assert.Equal(t, 1.0, tree.Predict([]float64{3, 0}))
	assert.Equal(t, 5.0, tree.Predict([]float64{15, 0}))
}

func TestGrowTree_ConstantTargetIsLeaf(t *testing.T) {
	x, _ := stepData()
	y := make([]float64, len(x))
	for i := range y {
		y[i] = 7
	}
	tree := growTree(x, y, allRows(len(y)), treeParams{maxDepth: 5, minSamplesLeaf: 1}, rand.New(rand.NewPCG(1, 1)))

	require.Len(t, tree.Nodes, 1)
	assert.Equal(t, -1, tree.Nodes[0].Feature)
	assert.Equal(t, 7.0, tree.Predict([]float64{100, 0}))
}

func TestBestSplit_TiesIndependentOfEarlierFeature(t *testing.T) {
	y := []float64{1.1, 0.3, 1e-9, 0.7, 2.9, 0.01, 1e6 + 0.1, 1e6 - 3.3, 1e6 + 7e-7, 1e6 + 0.9, 1e6 - 0.25, 1e6 + 1.5}
	bestFor := func(noise func(i int) float64) split {
		x := make([][]float64, len(y))
		for i := range x {
			x[i] = []float64{noise(i), float64(i / 6)}
		}
		b := &treeBuilder{x: x, y: y, params: treeParams{maxDepth: 3, minSamplesLeaf: 1}}
		s, ok := b.bestSplit(allRows(len(y)))
		require.True(t, ok)
		return s
	}

	forward := bestFor(func(i int) float64 { return float64(i * 5 % 12) })
	reversed := bestFor(func(i int) float64 { return float64(11 - i*5%12) })

	assert.Equal(t, 1, forward.feature)
	assert.Equal(t, 0.5, forward.threshold)
	assert.Equal(t, forward, reversed)
}

func TestGrowTree_RespectsMaxDepth(t *testing.T) {
	x := make([][]float64, 64)
	y := make([]float64, 64)
	for i := range x {
		x[i] = []float64{float64(i)}
		y[i] = float64(i * i)
	}
	tree := growTree(x, y, allRows(64), treeParams{maxDepth: 3, minSamplesLeaf: 1}, rand.New(rand.NewPCG(1, 1)))
	assert.LessOrEqual(t, tree.Depth(), 3)
}

func TestGrowTree_RespectsMinSamplesLeaf(t *testing.T) {
	x, y := stepData()
	tree := growTree(x, y, allRows(len(y)), treeParams{maxDepth: 10, minSamplesLeaf: 15}, rand.New(rand.NewPCG(1, 1)))
	// 20 rows cannot be split into two leaves of 15.
	assert.Len(t, tree.Nodes, 1)
}

func TestFitForest_RejectsMismatchedInput(t *testing.T) {
	_, err := FitForest(context.Background(), [][]float64{{1}}, []float64{1, 2}, DefaultConfig())
	assert.Error(t, err)
}

func TestForest_PredictEmpty(t *testing.T) {
	f := &Forest{}
	assert.True(t, f.Predict([]float64{1}) != f.Predict([]float64{1}), "empty forest predicts NaN")
}
