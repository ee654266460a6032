package fixedrule_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cozodb/cozo-sub000/fixedrule"
	"github.com/cozodb/cozo-sub000/program"
	"github.com/cozodb/cozo-sub000/relalg"
	"github.com/cozodb/cozo-sub000/value"
)

func edgeRelation(t *testing.T, pairs [][2]int64) *relalg.Relation {
	t.Helper()
	rel := relalg.New([]program.Symbol{"fr", "to"})
	for _, p := range pairs {
		_, err := rel.Insert(relalg.Tuple{value.Int(p[0]), value.Int(p[1])})
		require.NoError(t, err)
	}
	return rel
}

func TestConstantAlgorithm(t *testing.T) {
	d := fixedrule.New()
	options := map[string]value.Value{
		"data": value.List(
			value.List(value.Int(1), value.Int(2)),
			value.List(value.Int(3), value.Int(4)),
		),
	}
	out, err := d.Run(context.Background(), "Constant", nil, options)
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
}

func TestShortestPathBFS(t *testing.T) {
	edges := edgeRelation(t, [][2]int64{{1, 2}, {2, 3}, {1, 4}, {4, 3}})
	starts := relalg.New([]program.Symbol{"node"})
	_, err := starts.Insert(relalg.Tuple{value.Int(1)})
	require.NoError(t, err)

	d := fixedrule.New()
	out, err := d.Run(context.Background(), "ShortestPathBFS", []*relalg.Relation{edges, starts}, map[string]value.Value{
		"to": value.Int(3),
	})
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	row := out.Tuples[0]
	require.Equal(t, int64(1), row[0].Int)
	require.Equal(t, int64(3), row[1].Int)
	require.Equal(t, 3, len(row[2].List)) // 1 -> 2 -> 3, or 1 -> 4 -> 3: either way length 3
}

func TestConnectedComponents(t *testing.T) {
	edges := edgeRelation(t, [][2]int64{{1, 2}, {2, 3}, {10, 11}})
	d := fixedrule.New()
	out, err := d.Run(context.Background(), "ConnectedComponents", []*relalg.Relation{edges}, nil)
	require.NoError(t, err)
	require.Equal(t, 5, out.Len())

	components := map[int64]int64{}
	for _, t := range out.Tuples {
		components[t[0].Int] = t[1].Int
	}
	require.Equal(t, components[1], components[2])
	require.Equal(t, components[2], components[3])
	require.Equal(t, components[10], components[11])
	require.NotEqual(t, components[1], components[10])
}

func TestPageRank(t *testing.T) {
	edges := edgeRelation(t, [][2]int64{{1, 2}, {2, 1}, {1, 3}})
	d := fixedrule.New()
	out, err := d.Run(context.Background(), "PageRank", []*relalg.Relation{edges}, nil)
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())

	sum := 0.0
	for _, t := range out.Tuples {
		sum += t[1].Float
	}
	require.InDelta(t, 1.0, sum, 1e-6)
}

func TestDispatcherUnknownAlgorithm(t *testing.T) {
	d := fixedrule.New()
	_, err := d.Run(context.Background(), "NoSuchAlgo", nil, nil)
	require.Error(t, err)
}
