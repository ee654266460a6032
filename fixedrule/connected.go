package fixedrule

import (
	"context"
	"sort"

	"github.com/pilosa/pilosa/roaring"

	"github.com/cozodb/cozo-sub000/cozoerr"
	"github.com/cozodb/cozo-sub000/program"
	"github.com/cozodb/cozo-sub000/relalg"
	"github.com/cozodb/cozo-sub000/value"
)

// connectedComponents implements the ConnectedComponents fixed rule: treats
// inputs[0]'s edges as undirected and labels every node with its component
// id (the smallest node id reachable within the component), tracking
// already-labeled nodes with a roaring bitmap.
func connectedComponents(ctx context.Context, inputs []*relalg.Relation, options map[string]value.Value) (*relalg.Relation, error) {
	if len(inputs) < 1 {
		return nil, cozoerr.ErrValidation.New("ConnectedComponents requires an edge relation")
	}
	edges := inputs[0]

	adj := map[int64][]int64{}
	nodes := map[int64]bool{}
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
		adj[fr] = append(adj[fr], to)
		adj[to] = append(adj[to], fr)
		nodes[fr] = true
		nodes[to] = true
	}

	ordered := make([]int64, 0, len(nodes))
	for n := range nodes {
		ordered = append(ordered, n)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	visited := roaring.NewBitmap()
	cols := []program.Symbol{"c0", "c1"}
	out := relalg.New(cols)

	for _, root := range ordered {
		if visited.Contains(uint64(root)) {
			continue
		}
		queue := []int64{root}
		visited.Add(uint64(root))
		for len(queue) > 0 {
			n := queue[0]
			queue = queue[1:]
			if _, err := out.Insert(relalg.Tuple{value.Int(n), value.Int(root)}); err != nil {
				return nil, err
			}
			for _, next := range adj[n] {
				if visited.Contains(uint64(next)) {
					continue
				}
				visited.Add(uint64(next))
				queue = append(queue, next)
			}
		}
	}
	return out, nil
}
