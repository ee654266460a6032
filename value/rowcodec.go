package value

import (
	"encoding/binary"
	"encoding/json"
	"math"

	uuid "github.com/satori/go.uuid"

	"github.com/cozodb/cozo-sub000/cozoerr"
)

// Value-codec tags. Unlike the memcomparable key tags these need not be
// order-preserving, so the format favors fast decode: every variable-length
// payload is length-prefixed instead of escape-terminated.
const (
	vcNull byte = iota + 1
	vcBoolFalse
	vcBoolTrue
	vcInt
	vcFloat
	vcString
	vcBytes
	vcUuid
	vcList
	vcVec
	vcJson
)

// EncodeValue appends the length-prefixed encoding of v (the "V" in a K->V
// row) to buf. This is the format used for stored-relation value columns;
// it is not required to preserve order.
func EncodeValue(buf []byte, v Value) []byte {
	switch v.Tag {
	case TagNull:
		return append(buf, vcNull)
	case TagBool:
		if v.Bool {
			return append(buf, vcBoolTrue)
		}
		return append(buf, vcBoolFalse)
	case TagInt:
		buf = append(buf, vcInt)
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], uint64(v.Int))
		return append(buf, tmp[:]...)
	case TagFloat:
		buf = append(buf, vcFloat)
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v.Float))
		return append(buf, tmp[:]...)
	case TagString:
		return appendLenPrefixed(append(buf, vcString), []byte(v.Str))
	case TagBytes:
		return appendLenPrefixed(append(buf, vcBytes), v.Bytes)
	case TagUuid:
		return append(append(buf, vcUuid), v.Uuid.Bytes()...)
	case TagList:
		buf = append(buf, vcList)
		buf = appendVarint(buf, uint64(len(v.List)))
		for _, e := range v.List {
			buf = EncodeValue(buf, e)
		}
		return buf
	case TagVec:
		buf = append(buf, vcVec)
		buf = appendVarint(buf, uint64(len(v.Vec)))
		for _, f := range v.Vec {
			var tmp [8]byte
			binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(f))
			buf = append(buf, tmp[:]...)
		}
		return buf
	case TagJson:
		enc, _ := json.Marshal(v.Json)
		return appendLenPrefixed(append(buf, vcJson), enc)
	default:
		return append(buf, vcNull)
	}
}

// DecodeValue reads one value-codec-encoded Value from the front of buf.
func DecodeValue(buf []byte) (Value, []byte, error) {
	if len(buf) == 0 {
		return Value{}, nil, cozoerr.ErrInternal.New("cannot decode value from empty buffer")
	}
	tag, rest := buf[0], buf[1:]
	switch tag {
	case vcNull:
		return Null(), rest, nil
	case vcBoolFalse:
		return Bool(false), rest, nil
	case vcBoolTrue:
		return Bool(true), rest, nil
	case vcInt:
		if len(rest) < 8 {
			return Value{}, nil, cozoerr.ErrInternal.New("truncated int value")
		}
		return Int(int64(binary.LittleEndian.Uint64(rest[:8]))), rest[8:], nil
	case vcFloat:
		if len(rest) < 8 {
			return Value{}, nil, cozoerr.ErrInternal.New("truncated float value")
		}
		return Float(math.Float64frombits(binary.LittleEndian.Uint64(rest[:8]))), rest[8:], nil
	case vcString:
		raw, rest2, err := readLenPrefixed(rest)
		if err != nil {
			return Value{}, nil, err
		}
		return String(string(raw)), rest2, nil
	case vcBytes:
		raw, rest2, err := readLenPrefixed(rest)
		if err != nil {
			return Value{}, nil, err
		}
		return Bytes(raw), rest2, nil
	case vcUuid:
		if len(rest) < 16 {
			return Value{}, nil, cozoerr.ErrInternal.New("truncated uuid value")
		}
		u, err := uuid.FromBytes(rest[:16])
		if err != nil {
			return Value{}, nil, cozoerr.ErrInternal.New("invalid uuid bytes: " + err.Error())
		}
		return UUID(u), rest[16:], nil
	case vcList:
		n, rest2, err := readVarint(rest)
		if err != nil {
			return Value{}, nil, err
		}
		elems := make([]Value, 0, n)
		cur := rest2
		for i := uint64(0); i < n; i++ {
			var e Value
			e, cur, err = DecodeValue(cur)
			if err != nil {
				return Value{}, nil, err
			}
			elems = append(elems, e)
		}
		return List(elems...), cur, nil
	case vcVec:
		n, rest2, err := readVarint(rest)
		if err != nil {
			return Value{}, nil, err
		}
		if uint64(len(rest2)) < n*8 {
			return Value{}, nil, cozoerr.ErrInternal.New("truncated vec value")
		}
		out := make([]float64, n)
		for i := uint64(0); i < n; i++ {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(rest2[i*8 : i*8+8]))
		}
		return Vec(out), rest2[n*8:], nil
	case vcJson:
		raw, rest2, err := readLenPrefixed(rest)
		if err != nil {
			return Value{}, nil, err
		}
		var j interface{}
		if err := json.Unmarshal(raw, &j); err != nil {
			return Value{}, nil, cozoerr.ErrInternal.New("invalid json payload: " + err.Error())
		}
		return Json(j), rest2, nil
	default:
		return Value{}, nil, cozoerr.ErrInternal.New("unknown value codec tag byte")
	}
}

func appendLenPrefixed(buf []byte, raw []byte) []byte {
	buf = appendVarint(buf, uint64(len(raw)))
	return append(buf, raw...)
}

func readLenPrefixed(buf []byte) ([]byte, []byte, error) {
	n, rest, err := readVarint(buf)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(rest)) < n {
		return nil, nil, cozoerr.ErrInternal.New("truncated length-prefixed payload")
	}
	return rest[:n], rest[n:], nil
}

func appendVarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func readVarint(buf []byte) (uint64, []byte, error) {
	v, n := binary.Uvarint(buf)
	if n <= 0 {
		return 0, nil, cozoerr.ErrInternal.New("malformed varint in row codec")
	}
	return v, buf[n:], nil
}
