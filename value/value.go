// Package value implements Cozo's tagged-union Value type, its total
// ordering, and the two wire encodings the storage layer needs: a
// memcomparable encoding for keys and a length-prefixed encoding for values.
package value

import (
	"fmt"

	uuid "github.com/satori/go.uuid"
)

// Tag identifies which variant of the Value union is populated.
type Tag uint8

const (
	TagNull Tag = iota
	TagBool
	TagInt
	TagFloat
	TagString
	TagList
	TagBytes
	TagUuid
	TagVec
	TagJson
)

func (t Tag) String() string {
	switch t {
	case TagNull:
		return "Null"
	case TagBool:
		return "Bool"
	case TagInt:
		return "Int"
	case TagFloat:
		return "Float"
	case TagString:
		return "String"
	case TagList:
		return "List"
	case TagBytes:
		return "Bytes"
	case TagUuid:
		return "Uuid"
	case TagVec:
		return "Vec"
	case TagJson:
		return "Json"
	default:
		return "Unknown"
	}
}

// Value is Cozo's runtime value: Null, Bool, Int (signed 64-bit), Float
// (double), String, Bytes, Uuid, List of Value, Vec (numeric array), or Json
// (an opaque, already-parsed document tree represented as interface{} in
// encoding/json's decoded form: map[string]interface{}, []interface{},
// float64, string, bool or nil).
//
// Only one of the typed fields is meaningful per Tag; this mirrors a tagged
// union in a language without sum types, using a discriminant plus a set of
// typed fields to say how to interpret it.
type Value struct {
	Tag   Tag
	Bool  bool
	Int   int64
	Float float64
	Str   string
	Bytes []byte
	Uuid  uuid.UUID
	List  []Value
	Vec   []float64
	Json  interface{}
}

func Null() Value                   { return Value{Tag: TagNull} }
func Bool(b bool) Value             { return Value{Tag: TagBool, Bool: b} }
func Int(i int64) Value             { return Value{Tag: TagInt, Int: i} }
func Float(f float64) Value         { return Value{Tag: TagFloat, Float: f} }
func String(s string) Value         { return Value{Tag: TagString, Str: s} }
func Bytes(b []byte) Value          { return Value{Tag: TagBytes, Bytes: b} }
func UUID(u uuid.UUID) Value        { return Value{Tag: TagUuid, Uuid: u} }
func List(vs ...Value) Value        { return Value{Tag: TagList, List: vs} }
func Vec(v []float64) Value         { return Value{Tag: TagVec, Vec: v} }
func Json(j interface{}) Value      { return Value{Tag: TagJson, Json: j} }
func NewUUID() Value                { return Value{Tag: TagUuid, Uuid: uuid.NewV4()} }

// IsNull reports whether v is the Null value.
func (v Value) IsNull() bool { return v.Tag == TagNull }

// isNumber reports whether the tag participates in cross-numeric comparison.
func isNumber(t Tag) bool { return t == TagInt || t == TagFloat }

// rank gives the relative order of the *kinds* for values that are not both
// numbers: Null < Bool < Number < String < List < Bytes < Uuid < Vec < Json.
func rank(t Tag) int {
	switch t {
	case TagNull:
		return 0
	case TagBool:
		return 1
	case TagInt, TagFloat:
		return 2
	case TagString:
		return 3
	case TagList:
		return 4
	case TagBytes:
		return 5
	case TagUuid:
		return 6
	case TagVec:
		return 7
	case TagJson:
		return 8
	default:
		return 9
	}
}

// Compare returns -1, 0, or 1 following Cozo's total order:
// numeric cross-comparison for equality (1 == 1.0) but distinct sort
// position for ties (integer precedes an equal float), lists compared
// lexicographically, and otherwise comparison by Tag rank.
func Compare(a, b Value) int {
	if isNumber(a.Tag) && isNumber(b.Tag) {
		af, bf := a.asFloat(), b.asFloat()
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			// Equal numeric value: integer sorts before an equal float.
			if a.Tag == b.Tag {
				return 0
			}
			if a.Tag == TagInt {
				return -1
			}
			return 1
		}
	}

	ra, rb := rank(a.Tag), rank(b.Tag)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch a.Tag {
	case TagNull:
		return 0
	case TagBool:
		return boolCompare(a.Bool, b.Bool)
	case TagString:
		return stringCompare(a.Str, b.Str)
	case TagList:
		return listCompare(a.List, b.List)
	case TagBytes:
		return bytesCompare(a.Bytes, b.Bytes)
	case TagUuid:
		return bytesCompare(a.Uuid.Bytes(), b.Uuid.Bytes())
	case TagVec:
		return vecCompare(a.Vec, b.Vec)
	case TagJson:
		// Json participates in the total order only by identity of its
		// canonical string form; it never appears in a memcomparable key
		// (see EncodeKey).
		return stringCompare(fmt.Sprint(a.Json), fmt.Sprint(b.Json))
	default:
		return 0
	}
}

func (v Value) asFloat() float64 {
	if v.Tag == TagInt {
		return float64(v.Int)
	}
	return v.Float
}

func boolCompare(a, b bool) int {
	if a == b {
		return 0
	}
	if !a {
		return -1
	}
	return 1
}

func stringCompare(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func bytesCompare(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func listCompare(a, b []Value) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func vecCompare(a, b []float64) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Equal reports semantic equality (numeric cross-type equality included,
// also inside lists): Equal(Int(1), Float(1.0)) holds even though Compare
// sorts the Int first.
func Equal(a, b Value) bool {
	if isNumber(a.Tag) && isNumber(b.Tag) {
		return a.asFloat() == b.asFloat()
	}
	if a.Tag == TagList && b.Tag == TagList && len(a.List) == len(b.List) {
		for i := range a.List {
			if !Equal(a.List[i], b.List[i]) {
				return false
			}
		}
		return true
	}
	return Compare(a, b) == 0
}

// Less reports whether a sorts strictly before b.
func Less(a, b Value) bool { return Compare(a, b) < 0 }

func (v Value) String() string {
	switch v.Tag {
	case TagNull:
		return "null"
	case TagBool:
		return fmt.Sprint(v.Bool)
	case TagInt:
		return fmt.Sprint(v.Int)
	case TagFloat:
		return fmt.Sprint(v.Float)
	case TagString:
		return v.Str
	case TagBytes:
		return fmt.Sprintf("b\"%x\"", v.Bytes)
	case TagUuid:
		return v.Uuid.String()
	case TagList:
		return fmt.Sprint(v.List)
	case TagVec:
		return fmt.Sprint(v.Vec)
	case TagJson:
		return fmt.Sprint(v.Json)
	default:
		return "?"
	}
}
