package fixedrule

import (
	"context"

	"github.com/cozodb/cozo-sub000/cozoerr"
	"github.com/cozodb/cozo-sub000/program"
	"github.com/cozodb/cozo-sub000/relalg"
	"github.com/cozodb/cozo-sub000/value"
)

// pageRank implements the PageRank fixed rule over inputs[0]'s directed
// edges (columns 0 and 1) via power iteration, with "damping" (default
// 0.85) and "iterations" (default 20) options.
func pageRank(ctx context.Context, inputs []*relalg.Relation, options map[string]value.Value) (*relalg.Relation, error) {
	if len(inputs) < 1 {
		return nil, cozoerr.ErrValidation.New("PageRank requires an edge relation")
	}
	damping, err := optFloat(options, "damping", 0.85)
	if err != nil {
		return nil, err
	}
	iterations, err := optInt(options, "iterations", 20)
	if err != nil {
		return nil, err
	}

	edges := inputs[0]
	outLinks := map[int64][]int64{}
	nodeSet := map[int64]bool{}
	for _, t := range edges.Tuples {
		if len(t) < 2 {
			continue
		}
		fr, err := nodeID(t[0])
		if err != nil {
			return nil, err
		}
		to, err := nodeID(t[1])
		if err != nil {
			return nil, err
		}
		outLinks[fr] = append(outLinks[fr], to)
		nodeSet[fr] = true
		nodeSet[to] = true
	}

	cols := []program.Symbol{"c0", "c1"}
	n := len(nodeSet)
	if n == 0 {
		return relalg.New(cols), nil
	}

	rank := make(map[int64]float64, n)
	for node := range nodeSet {
		rank[node] = 1.0 / float64(n)
	}

	for iter := int64(0); iter < iterations; iter++ {
		next := make(map[int64]float64, n)
		base := (1 - damping) / float64(n)
		for node := range nodeSet {
			next[node] = base
		}
		for node := range nodeSet {
			links := outLinks[node]
			if len(links) == 0 {
				// A dangling node's rank is distributed evenly over every
				// node (itself included) instead of leaking out of the system.
				share := damping * rank[node] / float64(n)
				for target := range nodeSet {
					next[target] += share
				}
				continue
			}
			share := damping * rank[node] / float64(len(links))
			for _, to := range links {
				next[to] += share
			}
		}
		rank = next
	}

	out := relalg.New(cols)
	for node, r := range rank {
		if _, err := out.Insert(relalg.Tuple{value.Int(node), value.Float(r)}); err != nil {
			return nil, err
		}
	}
	return out, nil
}
