package model

import (
	"math/rand/v2"
	"slices"
)

// Node is one node of a regression tree in flattened form. Leaves have
// Feature == -1 and carry the prediction in Value.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

// Tree is a CART regression tree.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict walks the tree for one feature vector.
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (t *Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(0)
}

type treeParams struct {
	maxDepth       int
	minSamplesLeaf int
	maxFeatures    int
}

// treeBuilder grows one tree over a bootstrap sample of row indices.
type treeBuilder struct {
	x      [][]float64
	y      []float64
	params treeParams
	rng    *rand.Rand
	nodes  []Node
}

func growTree(x [][]float64, y []float64, sample []int, params treeParams, rng *rand.Rand) Tree {
	b := &treeBuilder{x: x, y: y, params: params, rng: rng}
	b.build(sample, 0)
	return Tree{Nodes: b.nodes}
}

func (b *treeBuilder) build(idx []int, depth int) int {
	self := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: -1, Value: b.mean(idx)})

	if depth >= b.params.maxDepth || len(idx) < 2*b.params.minSamplesLeaf {
		return self
	}
	best, ok := b.bestSplit(idx)
	if !ok {
		return self
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.x[i][best.feature] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[self] = Node{Feature: best.feature, Threshold: best.threshold, Left: l, Right: r, Value: b.nodes[self].Value}
	return self
}

func (b *treeBuilder) mean(idx []int) float64 {
	var sum float64
	for _, i := range idx {
		sum += b.y[i]
	}
	return sum / float64(len(idx))
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

// bestSplit picks the split that most reduces the summed squared error.
// Thresholds sit halfway between adjacent distinct feature values.
func (b *treeBuilder) bestSplit(idx []int) (split, bool) {
	n := float64(len(idx))
	var total, totalSq float64
	for _, i := range idx {
		total += b.y[i]
		totalSq += b.y[i] * b.y[i]
	}
	parentSSE := totalSq - total*total/n
	if parentSSE <= 0 {
		return split{}, false
	}

	// Gains below this are rounding noise on a pure node.
	best := split{feature: -1, gain: parentSSE * 1e-12}
	order := slices.Clone(idx)
	minLeaf := b.params.minSamplesLeaf

	for _, f := range b.candidateFeatures() {
		// Ties keep sample order, whatever feature was scanned before.
		copy(order, idx)
		slices.SortStableFunc(order, func(a, c int) int {
			switch {
			case b.x[a][f] < b.x[c][f]:
				return -1
			case b.x[a][f] > b.x[c][f]:
				return 1
			}
			return 0
		})

		var leftSum, leftSq float64
		for k := 0; k < len(order)-1; k++ {
			yi := b.y[order[k]]
			leftSum += yi
			leftSq += yi * yi

			nl := k + 1
			nr := len(order) - nl
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			cur, next := b.x[order[k]][f], b.x[order[k+1]][f]
			if cur == next {
				continue
			}

			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/float64(nl)) + (rightSq - rightSum*rightSum/float64(nr))
			gain := parentSSE - sse
			if gain > best.gain {
				threshold := cur + (next-cur)/2
				if threshold == next {
					threshold = cur
				}
				best = split{feature: f, threshold: threshold, gain: gain}
			}
		}
	}
	return best, best.feature >= 0
}

// candidateFeatures returns the features considered at a node. With
// maxFeatures equal to the feature count every feature is tried in order.
func (b *treeBuilder) candidateFeatures() []int {
	nf := len(b.x[0])
	all := make([]int, nf)
	for i := range all {
		all[i] = i
	}
	if b.params.maxFeatures <= 0 || b.params.maxFeatures >= nf {
		return all
	}
	b.rng.Shuffle(nf, func(i, j int) { all[i], all[j] = all[j], all[i] })
	return all[:b.params.maxFeatures]
}
