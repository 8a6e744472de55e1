package model

import (
	"math"
	"math/rand/v2"
)

// Split holds row indices for the training and held-out partitions.
type Split struct {
	Train []int
	Test  []int
}

// TrainTestSplit shuffles n row indices with a seeded RNG and holds out
// ceil(n*testFraction) of them. The same n, fraction and seed always yield
// the same partition.
func TrainTestSplit(n int, testFraction float64, seed uint64) Split {
	perm := rand.New(rand.NewPCG(seed, seed)).Perm(n)
	nTest := int(math.Ceil(float64(n) * testFraction))
	nTest = min(max(nTest, 0), n)
	return Split{Test: perm[:nTest], Train: perm[nTest:]}
}

func gather(x [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	gx := make([][]float64, len(idx))
	gy := make([]float64, len(idx))
	for i, j := range idx {
		gx[i] = x[j]
		gy[i] = y[j]
	}
	return gx, gy
}
