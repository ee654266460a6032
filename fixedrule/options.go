package fixedrule

import (
	"github.com/spf13/cast"

	"github.com/cozodb/cozo-sub000/cozoerr"
	"github.com/cozodb/cozo-sub000/value"
)

// optInt reads a named integer option, coercing loosely-typed values the way
// catalog.CoerceColumn does, falling back to def when the option is absent.
func optInt(options map[string]value.Value, key string, def int64) (int64, error) {
	v, ok := options[key]
	if !ok {
		return def, nil
	}
	i, err := cast.ToInt64E(scalarOf(v))
	if err != nil {
		return 0, cozoerr.ErrValidation.New("option " + key + ": " + err.Error())
	}
	return i, nil
}

// optFloat reads a named float option, falling back to def when absent.
func optFloat(options map[string]value.Value, key string, def float64) (float64, error) {
	v, ok := options[key]
	if !ok {
		return def, nil
	}
	f, err := cast.ToFloat64E(scalarOf(v))
	if err != nil {
		return 0, cozoerr.ErrValidation.New("option " + key + ": " + err.Error())
	}
	return f, nil
}

func scalarOf(v value.Value) interface{} {
	switch v.Tag {
	case value.TagBool:
		return v.Bool
	case value.TagInt:
		return v.Int
	case value.TagFloat:
		return v.Float
	case value.TagString:
		return v.Str
	default:
		return v.String()
	}
}

// nodeID requires v to be an Int, the node-id representation every
// graph-shaped algorithm in this package works with.
func nodeID(v value.Value) (int64, error) {
	if v.Tag != value.TagInt {
		return 0, cozoerr.ErrValidation.New("graph algorithms require Int-valued node ids")
	}
	return v.Int, nil
}
