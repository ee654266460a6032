package fixedrule

import (
	"context"

	"github.com/pilosa/pilosa/roaring"

	"github.com/cozodb/cozo-sub000/cozoerr"
	"github.com/cozodb/cozo-sub000/program"
	"github.com/cozodb/cozo-sub000/relalg"
	"github.com/cozodb/cozo-sub000/value"
)

// shortestPathBFS implements the ShortestPathBFS fixed rule: breadth-first
// search from every row of inputs[1] over the directed edges of inputs[0]
// (columns 0 and 1), optionally stopping at a single "to" option node,
// binding (start, end, path) triples for every node reached.
func shortestPathBFS(ctx context.Context, inputs []*relalg.Relation, options map[string]value.Value) (*relalg.Relation, error) {
	if len(inputs) < 2 {
		return nil, cozoerr.ErrValidation.New("ShortestPathBFS requires an edge relation and a starting-node relation")
	}
	edges, starts := inputs[0], inputs[1]
	adj, err := buildAdjacency(edges)
	if err != nil {
		return nil, err
	}

	var target *int64
	if v, ok := options["to"]; ok {
		id, err := nodeID(v)
		if err != nil {
			return nil, err
		}
		target = &id
	}

	cols := []program.Symbol{"c0", "c1", "c2"}
	out := relalg.New(cols)

	for _, row := range starts.Tuples {
		if len(row) == 0 {
			continue
		}
		startVal := row[0]
		startID, err := nodeID(startVal)
		if err != nil {
			return nil, err
		}
		paths, err := bfsFrom(startID, adj, target)
		if err != nil {
			return nil, err
		}
		for end, path := range paths {
			pathVals := make([]value.Value, len(path))
			for i, id := range path {
				pathVals[i] = value.Int(id)
			}
			if _, err := out.Insert(relalg.Tuple{startVal, value.Int(end), value.List(pathVals...)}); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func buildAdjacency(edges *relalg.Relation) (map[int64][]int64, error) {
	adj := map[int64][]int64{}
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
	}
	return adj, nil
}

// bfsFrom explores every node reachable from start, tracking the shortest
// path to each via a roaring bitmap of already-visited node ids — a compact
// membership test over the dense integer node-id space graph algorithms work
// over. When target is non-nil it returns as soon as that single node is
// reached instead of exploring the rest of the component.
func bfsFrom(start int64, adj map[int64][]int64, target *int64) (map[int64][]int64, error) {
	visited := roaring.NewBitmap()
	visited.Add(uint64(start))
	paths := map[int64][]int64{start: {start}}
	queue := []int64{start}

	if target != nil && *target == start {
		return map[int64][]int64{start: {start}}, nil
	}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, next := range adj[n] {
			if visited.Contains(uint64(next)) {
				continue
			}
			visited.Add(uint64(next))
			path := append(append([]int64{}, paths[n]...), next)
			paths[next] = path
			if target != nil && next == *target {
				return map[int64][]int64{next: path}, nil
			}
			queue = append(queue, next)
		}
	}

	if target != nil {
		return map[int64][]int64{}, nil
	}
	delete(paths, start)
	return paths, nil
}
