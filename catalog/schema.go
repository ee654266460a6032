// Package catalog holds the process-wide stored-relation schema registry:
// column definitions, triggers, and access levels. This package defines the
// schema model and the in-memory registry; registry changes are neither
// stored in the storage engine nor tied to its transactions.
package catalog

import (
	"github.com/spf13/cast"

	"github.com/cozodb/cozo-sub000/cozoerr"
	"github.com/cozodb/cozo-sub000/value"
)

// ColumnType names the declared type of a stored-relation column.
type ColumnType int

const (
	ColAny ColumnType = iota
	ColBool
	ColInt
	ColFloat
	ColString
	ColBytes
	ColUuid
	ColList
	ColVec
	ColJson
)

func (t ColumnType) String() string {
	switch t {
	case ColBool:
		return "Bool"
	case ColInt:
		return "Int"
	case ColFloat:
		return "Float"
	case ColString:
		return "String"
	case ColBytes:
		return "Bytes"
	case ColUuid:
		return "Uuid"
	case ColList:
		return "List"
	case ColVec:
		return "Vec"
	case ColJson:
		return "Json"
	default:
		return "Any"
	}
}

// Column describes one key or value column of a stored relation.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
	// Default, if non-nil, is the value CoerceColumn substitutes for a Null
	// bound to this column when the column is not Nullable.
	Default *value.Value
}

// AccessLevel gates which query options may touch a stored relation.
type AccessLevel int

const (
	// Normal relations may be read and written freely.
	Normal AccessLevel = iota
	// Protected relations require an explicit override to mutate (used for
	// system/bookkeeping relations that ordinary scripts should not touch
	// by accident).
	Protected
	// ReadOnly relations reject every mutation op.
	ReadOnly
	// Hidden relations are excluded from catalog listings (Names), the
	// exported manifest and backups; ExportRelations still reads a Hidden
	// relation that is named explicitly.
	Hidden
)

func (a AccessLevel) AllowsWrite() bool { return a == Normal }
func (a AccessLevel) AllowsRead() bool  { return a != Hidden }

// AllowsWriteWithOverride is AllowsWrite, except a Protected relation also
// allows it when override is true (the query opted in via
// program.QueryOptions.AllowProtectedWrite). ReadOnly and Hidden never allow
// a write, override or not.
func (a AccessLevel) AllowsWriteWithOverride(override bool) bool {
	if a == Protected && override {
		return true
	}
	return a.AllowsWrite()
}

// TriggerKind names which mutation op a trigger program fires on.
type TriggerKind int

const (
	OnPut TriggerKind = iota
	OnRm
	OnReplace
)

// Trigger is a program attached to a stored relation. The
// Program is left opaque here (an interface{} holding a *program.Program) to
// avoid a dependency cycle between catalog and program; the txn package
// type-asserts it when firing.
type Trigger struct {
	Kind    TriggerKind
	Program interface{}
}

// Relation is a stored relation's schema: ordered key columns, ordered
// value columns, triggers, and access level.
type Relation struct {
	Name        string
	KeyCols     []Column
	ValCols     []Column
	Triggers    []Trigger
	AccessLevel AccessLevel
}

// Arity is the total column count (key + value).
func (r *Relation) Arity() int { return len(r.KeyCols) + len(r.ValCols) }

// KeyPrefix is the byte-string every stored key of this relation starts
// with: the relation's name, memcomparable-encoded as a String. The
// encoding's escape-terminator makes this self-delimiting, so one
// relation's keys can never be a byte-prefix of another's even when one
// name is a textual prefix of the other (e.g. "foo" and "foobar").
func (r *Relation) KeyPrefix() ([]byte, error) {
	return value.EncodeKey(nil, value.String(r.Name))
}

// AllColumns returns key columns followed by value columns, the canonical
// column order used by row encode/decode and by :put/:rm binding.
func (r *Relation) AllColumns() []Column {
	cols := make([]Column, 0, r.Arity())
	cols = append(cols, r.KeyCols...)
	cols = append(cols, r.ValCols...)
	return cols
}

// CoerceColumn converts v to the declared type of col, the way spf13/cast
// coerces loosely-typed config values elsewhere in the corpus. It returns
// cozoerr.ErrCoercion if v cannot be represented as col.Type.
func CoerceColumn(col Column, v value.Value) (value.Value, error) {
	if v.IsNull() {
		if col.Nullable {
			return v, nil
		}
		if col.Default != nil {
			return *col.Default, nil
		}
		return value.Value{}, cozoerr.ErrCoercion.New(v, col.Type.String()+" (non-nullable, no default)")
	}

	switch col.Type {
	case ColAny:
		return v, nil
	case ColBool:
		b, err := cast.ToBoolE(scalarOf(v))
		if err != nil {
			return value.Value{}, cozoerr.ErrCoercion.New(v, col.Type.String())
		}
		return value.Bool(b), nil
	case ColInt:
		i, err := cast.ToInt64E(scalarOf(v))
		if err != nil {
			return value.Value{}, cozoerr.ErrCoercion.New(v, col.Type.String())
		}
		return value.Int(i), nil
	case ColFloat:
		f, err := cast.ToFloat64E(scalarOf(v))
		if err != nil {
			return value.Value{}, cozoerr.ErrCoercion.New(v, col.Type.String())
		}
		return value.Float(f), nil
	case ColString:
		s, err := cast.ToStringE(scalarOf(v))
		if err != nil {
			return value.Value{}, cozoerr.ErrCoercion.New(v, col.Type.String())
		}
		return value.String(s), nil
	case ColBytes:
		if v.Tag != value.TagBytes {
			return value.Value{}, cozoerr.ErrCoercion.New(v, col.Type.String())
		}
		return v, nil
	case ColUuid:
		if v.Tag != value.TagUuid {
			return value.Value{}, cozoerr.ErrCoercion.New(v, col.Type.String())
		}
		return v, nil
	case ColList:
		if v.Tag != value.TagList {
			return value.Value{}, cozoerr.ErrCoercion.New(v, col.Type.String())
		}
		return v, nil
	case ColVec:
		if v.Tag != value.TagVec {
			return value.Value{}, cozoerr.ErrCoercion.New(v, col.Type.String())
		}
		return v, nil
	case ColJson:
		if v.Tag != value.TagJson {
			return value.Value{}, cozoerr.ErrCoercion.New(v, col.Type.String())
		}
		return v, nil
	default:
		return value.Value{}, cozoerr.ErrInternal.New("unknown column type")
	}
}

// scalarOf unwraps a Value to the interface{} cast expects.
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

// ValidateKeyColumns rejects Vec/Json in key-column position: these are
// value-only types and may never participate in a memcomparable key.
func (r *Relation) ValidateKeyColumns() error {
	for _, c := range r.KeyCols {
		if c.Type == ColVec || c.Type == ColJson {
			return cozoerr.ErrValidation.New("column " + c.Name + " of type " + c.Type.String() + " cannot be a key column")
		}
	}
	return nil
}
