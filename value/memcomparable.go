package value

import (
	"encoding/binary"
	"math"

	"github.com/cozodb/cozo-sub000/cozoerr"
)

// Memcomparable tag bytes. Order here fixes the byte-lexicographic order of
// the tags themselves, and must agree with rank() in value.go.
const (
	mcNull byte = iota + 1
	mcBoolFalse
	mcBoolTrue
	mcNumber
	mcString
	mcList
	mcBytes
	mcUuid
)

// mcListEnd terminates a list's elements. It sorts below every element tag,
// so a list sorts before any longer list it is a prefix of.
const mcListEnd byte = 0x00

// EncodeKey appends the memcomparable encoding of v to buf and returns the
// extended slice. The contract: for any two values a, b of
// compatible kinds, EncodeKey(a) <_bytes EncodeKey(b) iff a <_semantic b.
//
// Vec and Json are value-only types: encoding either into a memcomparable
// key is a programming error caught at schema-validation time, so EncodeKey
// reports ErrInternal rather than silently producing an unordered encoding.
func EncodeKey(buf []byte, v Value) ([]byte, error) {
	switch v.Tag {
	case TagNull:
		return append(buf, mcNull), nil
	case TagBool:
		if v.Bool {
			return append(buf, mcBoolTrue), nil
		}
		return append(buf, mcBoolFalse), nil
	case TagInt:
		buf = append(buf, mcNumber)
		return encodeOrderedInt(buf, v.Int), nil
	case TagFloat:
		buf = append(buf, mcNumber)
		return encodeOrderedFloat(buf, v.Float), nil
	case TagString:
		buf = append(buf, mcString)
		return encodeEscapedBytes(buf, []byte(v.Str)), nil
	case TagList:
		buf = append(buf, mcList)
		var err error
		for _, elem := range v.List {
			buf, err = EncodeKey(buf, elem)
			if err != nil {
				return nil, err
			}
		}
		return append(buf, mcListEnd), nil
	case TagBytes:
		buf = append(buf, mcBytes)
		return encodeEscapedBytes(buf, v.Bytes), nil
	case TagUuid:
		buf = append(buf, mcUuid)
		return append(buf, v.Uuid.Bytes()...), nil
	default:
		return nil, cozoerr.ErrInternal.New("value of tag " + v.Tag.String() + " cannot appear in a memcomparable key")
	}
}

// encodeOrderedInt produces a big-endian encoding with the sign bit flipped,
// so that the full signed-integer range sorts correctly byte-wise.
func encodeOrderedInt(buf []byte, i int64) []byte {
	u := uint64(i) ^ (uint64(1) << 63)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], u)
	return append(buf, tmp[:]...)
}

// encodeOrderedFloat applies the standard IEEE-754 total-ordering
// transform: flip the sign bit for positive numbers (and zero), flip every
// bit for negative numbers. This makes the big-endian byte representation
// order exactly like the float's numeric order, including across the
// positive/negative boundary.
func encodeOrderedFloat(buf []byte, f float64) []byte {
	bits := math.Float64bits(f)
	if bits&(uint64(1)<<63) != 0 {
		bits = ^bits
	} else {
		bits |= uint64(1) << 63
	}
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], bits)
	return append(buf, tmp[:]...)
}

// encodeEscapedBytes writes a prefix-free, order-preserving encoding of raw
// bytes: every 0x00 byte is escaped to 0x00 0xFF, and the sequence is
// terminated by 0x00 0x00. This keeps byte-lexicographic order identical to
// the order of the original byte strings while making the encoding
// self-delimiting within a composite key.
func encodeEscapedBytes(buf []byte, raw []byte) []byte {
	for _, b := range raw {
		if b == 0x00 {
			buf = append(buf, 0x00, 0xFF)
		} else {
			buf = append(buf, b)
		}
	}
	return append(buf, 0x00, 0x00)
}

// EncodeCompositeKey concatenates the memcomparable encoding of each column
// in order. Column count is fixed per relation, so no length
// prefix is needed between components at the outermost level; each
// component is self-delimiting on its own (numbers/bools are fixed-width or
// single-byte, strings/bytes are escape-terminated, lists are
// end-terminated).
func EncodeCompositeKey(cols []Value) ([]byte, error) {
	var buf []byte
	var err error
	for _, c := range cols {
		buf, err = EncodeKey(buf, c)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}
