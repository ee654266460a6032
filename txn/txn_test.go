package txn_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cozodb/cozo-sub000/catalog"
	"github.com/cozodb/cozo-sub000/program"
	"github.com/cozodb/cozo-sub000/storage"
	"github.com/cozodb/cozo-sub000/storage/memkv"
	"github.com/cozodb/cozo-sub000/stratify"
	"github.com/cozodb/cozo-sub000/txn"
	"github.com/cozodb/cozo-sub000/value"
)

// constantEntryProgram builds a program whose "?" entry rule is the given
// constant rows, optionally carrying a mutation op against targetRel.
func constantEntryProgram(rows [][]value.Value, arity int, op program.MutationOp, targetRel string) *program.Program {
	cols := make([]program.Symbol, arity)
	mutationCols := make([]program.Symbol, arity)
	for i := range cols {
		cols[i] = program.Symbol("c" + string(rune('0'+i)))
		mutationCols[i] = cols[i]
	}
	head := make(program.Head, arity)
	for i, c := range cols {
		head[i] = program.HeadEntry{Symbol: c}
	}
	p := &program.Program{
		Rules: []*program.Rule{{
			Name:         program.EntryRuleName,
			Kind:         program.Constant,
			Head:         head,
			ConstantRows: rows,
		}},
	}
	if op != program.NoMutation {
		p.MutationOp = op
		p.MutationRel = targetRel
		p.MutationCols = mutationCols
	}
	return p
}

func mustStrata(t *testing.T, p *program.Program) []stratify.Stratum {
	t.Helper()
	strata, err := stratify.Stratify(p)
	require.NoError(t, err)
	return strata
}

func newPeopleCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat := catalog.New()
	require.NoError(t, cat.Create(&catalog.Relation{
		Name:    "people",
		KeyCols: []catalog.Column{{Name: "id", Type: catalog.ColInt}},
		ValCols: []catalog.Column{{Name: "name", Type: catalog.ColString}},
	}))
	return cat
}

func beginWrite(t *testing.T, eng *memkv.Engine) storage.Tx {
	t.Helper()
	tx, err := eng.Begin(context.Background(), true)
	require.NoError(t, err)
	return tx
}

func TestRunScriptPutThenRm(t *testing.T) {
	cat := newPeopleCatalog(t)
	eng := memkv.New()
	r := &txn.Runner{Catalog: cat}

	putRows := [][]value.Value{
		{value.Int(1), value.String("alice")},
		{value.Int(2), value.String("bob")},
	}
	putProgram := constantEntryProgram(putRows, 2, program.OpPut, "people")

	tx1 := beginWrite(t, eng)
	results, err := r.RunScript(context.Background(), tx1, []txn.Query{
		{Program: putProgram, Strata: mustStrata(t, putProgram)},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, 2, results[0].Entry.Len())

	tx2 := beginWrite(t, eng)
	rmProgram := constantEntryProgram([][]value.Value{
		{value.Int(1), value.String("alice")},
	}, 2, program.OpRm, "people")
	_, err = r.RunScript(context.Background(), tx2, []txn.Query{
		{Program: rmProgram, Strata: mustStrata(t, rmProgram)},
	})
	require.NoError(t, err)

	tx3, err := eng.Begin(context.Background(), false)
	require.NoError(t, err)
	defer tx3.Rollback()
	schema, err := cat.Get("people")
	require.NoError(t, err)
	prefix, err := schema.KeyPrefix()
	require.NoError(t, err)
	key1, err := value.EncodeKey(append([]byte{}, prefix...), value.Int(1))
	require.NoError(t, err)
	_, ok, err := tx3.Get(key1)
	require.NoError(t, err)
	require.False(t, ok, "row 1 should have been removed")
	key2, err := value.EncodeKey(append([]byte{}, prefix...), value.Int(2))
	require.NoError(t, err)
	_, ok, err = tx3.Get(key2)
	require.NoError(t, err)
	require.True(t, ok, "row 2 should still be present")
}

func TestRunScriptCreateRejectsExistingKey(t *testing.T) {
	cat := newPeopleCatalog(t)
	eng := memkv.New()
	r := &txn.Runner{Catalog: cat}

	rows := [][]value.Value{{value.Int(1), value.String("alice")}}
	p1 := constantEntryProgram(rows, 2, program.OpCreate, "people")
	tx1 := beginWrite(t, eng)
	_, err := r.RunScript(context.Background(), tx1, []txn.Query{
		{Program: p1, Strata: mustStrata(t, p1)},
	})
	require.NoError(t, err)

	p2 := constantEntryProgram(rows, 2, program.OpCreate, "people")
	tx2 := beginWrite(t, eng)
	_, err = r.RunScript(context.Background(), tx2, []txn.Query{
		{Program: p2, Strata: mustStrata(t, p2)},
	})
	require.Error(t, err)
}

func TestRunScriptProtectedRelationRequiresOverride(t *testing.T) {
	cat := catalog.New()
	require.NoError(t, cat.Create(&catalog.Relation{
		Name:        "people",
		KeyCols:     []catalog.Column{{Name: "id", Type: catalog.ColInt}},
		ValCols:     []catalog.Column{{Name: "name", Type: catalog.ColString}},
		AccessLevel: catalog.Protected,
	}))
	eng := memkv.New()
	r := &txn.Runner{Catalog: cat}
	rows := [][]value.Value{{value.Int(1), value.String("alice")}}

	p := constantEntryProgram(rows, 2, program.OpPut, "people")
	tx := beginWrite(t, eng)
	_, err := r.RunScript(context.Background(), tx, []txn.Query{
		{Program: p, Strata: mustStrata(t, p)},
	})
	require.Error(t, err)

	p2 := constantEntryProgram(rows, 2, program.OpPut, "people")
	p2.Options.AllowProtectedWrite = true
	tx2 := beginWrite(t, eng)
	_, err = r.RunScript(context.Background(), tx2, []txn.Query{
		{Program: p2, Strata: mustStrata(t, p2)},
	})
	require.NoError(t, err)
}

func TestRunScriptEnsureAndEnsureNot(t *testing.T) {
	cat := newPeopleCatalog(t)
	eng := memkv.New()
	r := &txn.Runner{Catalog: cat}

	rows := [][]value.Value{{value.Int(1), value.String("alice")}}
	putP := constantEntryProgram(rows, 2, program.OpPut, "people")
	tx1 := beginWrite(t, eng)
	_, err := r.RunScript(context.Background(), tx1, []txn.Query{
		{Program: putP, Strata: mustStrata(t, putP)},
	})
	require.NoError(t, err)

	ensureP := constantEntryProgram(rows, 2, program.OpEnsure, "people")
	tx2 := beginWrite(t, eng)
	_, err = r.RunScript(context.Background(), tx2, []txn.Query{
		{Program: ensureP, Strata: mustStrata(t, ensureP)},
	})
	require.NoError(t, err)

	missingRows := [][]value.Value{{value.Int(99), value.String("nobody")}}
	ensureNotP := constantEntryProgram(missingRows, 2, program.OpEnsureNot, "people")
	tx3 := beginWrite(t, eng)
	_, err = r.RunScript(context.Background(), tx3, []txn.Query{
		{Program: ensureNotP, Strata: mustStrata(t, ensureNotP)},
	})
	require.NoError(t, err)

	ensureMissingP := constantEntryProgram(missingRows, 2, program.OpEnsure, "people")
	tx4 := beginWrite(t, eng)
	_, err = r.RunScript(context.Background(), tx4, []txn.Query{
		{Program: ensureMissingP, Strata: mustStrata(t, ensureMissingP)},
	})
	require.Error(t, err)
}

func TestRunScriptFiresOnPutTrigger(t *testing.T) {
	cat := catalog.New()
	require.NoError(t, cat.Create(&catalog.Relation{
		Name:    "audit_log",
		KeyCols: []catalog.Column{{Name: "id", Type: catalog.ColInt}},
		ValCols: []catalog.Column{{Name: "name", Type: catalog.ColString}},
	}))

	// The trigger program mutates audit_log from whatever "_new" holds:
	// ?[id, name] := _new[id, name], then :put into audit_log.
	triggerBody := []program.Atom{{
		Kind:     program.AtomRuleApplication,
		RuleName: "_new",
		Args:     []program.Symbol{"id", "name"},
	}}
	triggerHead := program.Head{{Symbol: "id"}, {Symbol: "name"}}
	triggerProgram := &program.Program{
		Rules: []*program.Rule{{
			Name: program.EntryRuleName,
			Kind: program.Inline,
			Head: triggerHead,
			Body: triggerBody,
		}},
		MutationOp:   program.OpPut,
		MutationRel:  "audit_log",
		MutationCols: []program.Symbol{"id", "name"},
	}

	require.NoError(t, cat.Create(&catalog.Relation{
		Name:    "people",
		KeyCols: []catalog.Column{{Name: "id", Type: catalog.ColInt}},
		ValCols: []catalog.Column{{Name: "name", Type: catalog.ColString}},
		Triggers: []catalog.Trigger{{
			Kind:    catalog.OnPut,
			Program: triggerProgram,
		}},
	}))

	eng := memkv.New()
	r := &txn.Runner{Catalog: cat}

	rows := [][]value.Value{{value.Int(1), value.String("alice")}}
	p := constantEntryProgram(rows, 2, program.OpPut, "people")
	tx1 := beginWrite(t, eng)
	_, err := r.RunScript(context.Background(), tx1, []txn.Query{
		{Program: p, Strata: mustStrata(t, p)},
	})
	require.NoError(t, err)

	tx2, err := eng.Begin(context.Background(), false)
	require.NoError(t, err)
	defer tx2.Rollback()
	auditSchema, err := cat.Get("audit_log")
	require.NoError(t, err)
	prefix, err := auditSchema.KeyPrefix()
	require.NoError(t, err)
	key, err := value.EncodeKey(append([]byte{}, prefix...), value.Int(1))
	require.NoError(t, err)
	_, ok, err := tx2.Get(key)
	require.NoError(t, err)
	require.True(t, ok, "trigger should have written audit_log row")
}

func TestRunScriptAssertAbortsWholeScript(t *testing.T) {
	cat := newPeopleCatalog(t)
	eng := memkv.New()
	r := &txn.Runner{Catalog: cat}

	putRows := [][]value.Value{{value.Int(1), value.String("alice")}}
	putP := constantEntryProgram(putRows, 2, program.OpPut, "people")

	assertP := constantEntryProgram(nil, 2, program.NoMutation, "")
	assertP.Options.AssertOp = program.AssertSome // no rows -> violated

	tx1 := beginWrite(t, eng)
	_, err := r.RunScript(context.Background(), tx1, []txn.Query{
		{Program: putP, Strata: mustStrata(t, putP)},
		{Program: assertP, Strata: mustStrata(t, assertP)},
	})
	require.Error(t, err)

	tx2, err := eng.Begin(context.Background(), false)
	require.NoError(t, err)
	defer tx2.Rollback()
	schema, err := cat.Get("people")
	require.NoError(t, err)
	prefix, err := schema.KeyPrefix()
	require.NoError(t, err)
	key, err := value.EncodeKey(append([]byte{}, prefix...), value.Int(1))
	require.NoError(t, err)
	_, ok, err := tx2.Get(key)
	require.NoError(t, err)
	require.False(t, ok, "the whole script must have rolled back, including the earlier :put")
}
