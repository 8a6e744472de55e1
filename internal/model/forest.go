package model

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Forest is a bagged ensemble of regression trees. The prediction is the
// mean of the tree predictions.
type Forest struct {
	Trees []Tree `json:"trees"`
}

// FitForest grows cfg.Trees trees, each on a bootstrap sample of the rows.
// Tree i draws from an RNG seeded with (cfg.Seed, i), so the result does not
// depend on how many trees are grown concurrently.
func FitForest(ctx context.Context, x [][]float64, y []float64, cfg Config) (*Forest, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("feature rows (%d) and labels (%d) must be non-empty and equal", len(x), len(y))
	}
	params := treeParams{
		maxDepth:       cfg.MaxDepth,
		minSamplesLeaf: cfg.MinSamplesLeaf,
		maxFeatures:    cfg.MaxFeatures,
	}

	trees := make([]Tree, cfg.Trees)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(fitWorkers(cfg))
	for i := range trees {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(cfg.Seed, uint64(i)))
			trees[i] = growTree(x, y, bootstrap(len(x), rng), params, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Forest{Trees: trees}, nil
}

func fitWorkers(cfg Config) int {
	if cfg.Workers > 0 {
		return cfg.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func bootstrap(n int, rng *rand.Rand) []int {
	sample := make([]int, n)
	for i := range sample {
		sample[i] = rng.IntN(n)
	}
	return sample
}

// Predict returns the ensemble prediction for one feature vector.
func (f *Forest) Predict(x []float64) float64 {
	if len(f.Trees) == 0 {
		return math.NaN()
	}
	var sum float64
	for i := range f.Trees {
		sum += f.Trees[i].Predict(x)
	}
	return sum / float64(len(f.Trees))
}

// PredictAll predicts every row of x.
func (f *Forest) PredictAll(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = f.Predict(row)
	}
	return out
}
