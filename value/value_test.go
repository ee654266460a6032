package value_test

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cozodb/cozo-sub000/value"
)

func TestCompareTotalOrder(t *testing.T) {
	ordered := []value.Value{
		value.Null(),
		value.Bool(false),
		value.Bool(true),
		value.Int(-5),
		value.Int(0),
		value.Float(0.5),
		value.Int(1),
		value.Float(1.5),
		value.String("a"),
		value.String("b"),
		value.List(value.Int(1)),
		value.List(value.Int(1), value.Int(2)),
		value.Bytes([]byte{1, 2}),
	}
	for i := 0; i < len(ordered)-1; i++ {
		require.True(t, value.Less(ordered[i], ordered[i+1]), "expected %v < %v", ordered[i], ordered[i+1])
	}
}

func TestCompareNumericCrossEquality(t *testing.T) {
	require.True(t, value.Equal(value.Int(1), value.Float(1.0)))
	require.True(t, value.Less(value.Int(1), value.Float(1.0)))
	// Integer sorts before an equal float.
	require.Equal(t, -1, value.Compare(value.Int(1), value.Float(1.0)))
	require.Equal(t, 1, value.Compare(value.Float(1.0), value.Int(1)))
}

func TestMemcomparableKeyOrderMatchesSemanticOrder(t *testing.T) {
	vals := []value.Value{
		value.Int(-100), value.Int(-1), value.Int(0), value.Int(1), value.Int(100),
		value.Float(-2.5), value.Float(-0.1), value.Float(0.1), value.Float(2.5),
		value.String(""), value.String("a"), value.String("ab"), value.String("b"),
		value.Bool(false), value.Bool(true), value.Null(),
		value.List(value.Int(1)), value.List(value.Int(1), value.Int(2)), value.List(value.Int(2)),
	}

	r := rand.New(rand.NewSource(1))
	type pair struct {
		v   value.Value
		enc []byte
	}
	pairs := make([]pair, 0, len(vals))
	for _, v := range vals {
		enc, err := value.EncodeKey(nil, v)
		require.NoError(t, err)
		pairs = append(pairs, pair{v, enc})
	}
	r.Shuffle(len(pairs), func(i, j int) { pairs[i], pairs[j] = pairs[j], pairs[i] })

	sort.Slice(pairs, func(i, j int) bool {
		return string(pairs[i].enc) < string(pairs[j].enc)
	})

	for i := 0; i < len(pairs)-1; i++ {
		a, b := pairs[i].v, pairs[i+1].v
		// Skip cross-kind numeric comparisons: the memcomparable encoding
		// does not interleave Int and Float byte order by design (callers
		// decode a column by its declared static type), so only compare
		// same-kind neighbors here.
		if a.Tag != b.Tag {
			continue
		}
		require.True(t, value.Compare(a, b) <= 0, "byte order regressed semantic order: %v then %v", a, b)
	}
}

func TestEncodeDecodeKeyRoundTrip(t *testing.T) {
	vals := []value.Value{
		value.Null(),
		value.Bool(true),
		value.Bool(false),
		value.String("hello\x00world"),
		value.Bytes([]byte{0, 1, 2, 0, 0, 255}),
		value.List(value.Int(1), value.String("x"), value.List(value.Bool(true))),
		value.NewUUID(),
	}
	for _, v := range vals {
		enc, err := value.EncodeKey(nil, v)
		require.NoError(t, err)
		got, rest, err := value.DecodeKey(enc)
		require.NoError(t, err)
		require.Empty(t, rest)
		require.True(t, value.Equal(v, got), "round trip mismatch: %v vs %v", v, got)
	}
}

func TestEncodeDecodeValueRoundTrip(t *testing.T) {
	vals := []value.Value{
		value.Null(),
		value.Int(-42),
		value.Float(3.14),
		value.String("hello"),
		value.Bytes([]byte{9, 8, 7}),
		value.List(value.Int(1), value.Int(2), value.Int(3)),
		value.Vec([]float64{1, 2, 3.5}),
		value.Json(map[string]interface{}{"a": float64(1)}),
		value.NewUUID(),
	}
	for _, v := range vals {
		enc := value.EncodeValue(nil, v)
		got, rest, err := value.DecodeValue(enc)
		require.NoError(t, err)
		require.Empty(t, rest)
		require.True(t, value.Equal(v, got), "round trip mismatch: %v vs %v", v, got)
	}
}

func TestEncodeKeyRejectsVecAndJson(t *testing.T) {
	_, err := value.EncodeKey(nil, value.Vec([]float64{1, 2}))
	require.Error(t, err)
	_, err = value.EncodeKey(nil, value.Json(map[string]interface{}{"a": 1}))
	require.Error(t, err)
}
