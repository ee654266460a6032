package fixedrule

import (
	"context"
	"fmt"

	"github.com/cozodb/cozo-sub000/cozoerr"
	"github.com/cozodb/cozo-sub000/program"
	"github.com/cozodb/cozo-sub000/relalg"
	"github.com/cozodb/cozo-sub000/value"
)

// constantAlgorithm implements the Constant fixed rule: its "data" option is
// a List of equal-arity row Lists, materialized with no input relations.
// Column names are placeholders — evalFixed rebinds the result's Cols to the
// calling rule's head symbols regardless of what this returns.
func constantAlgorithm(ctx context.Context, inputs []*relalg.Relation, options map[string]value.Value) (*relalg.Relation, error) {
	data, ok := options["data"]
	if !ok || data.Tag != value.TagList {
		return nil, cozoerr.ErrValidation.New("Constant: option 'data' must be a List of rows")
	}

	arity := 0
	if len(data.List) > 0 {
		if data.List[0].Tag != value.TagList {
			return nil, cozoerr.ErrValidation.New("Constant: each row must be a List")
		}
		arity = len(data.List[0].List)
	}

	cols := make([]program.Symbol, arity)
	for i := range cols {
		cols[i] = program.Symbol(fmt.Sprintf("c%d", i))
	}
	rel := relalg.New(cols)
	for _, row := range data.List {
		if row.Tag != value.TagList || len(row.List) != arity {
			return nil, cozoerr.ErrValidation.New("Constant: every row must share the first row's arity")
		}
		if _, err := rel.Insert(relalg.Tuple(row.List)); err != nil {
			return nil, err
		}
	}
	return rel, nil
}
