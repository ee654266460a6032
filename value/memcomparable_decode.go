package value

import (
	"encoding/binary"
	"math"

	uuid "github.com/satori/go.uuid"

	"github.com/cozodb/cozo-sub000/cozoerr"
)

// DecodeKey reads one memcomparable-encoded value from the front of buf and
// returns it along with the unconsumed remainder. It inverts EncodeKey for
// every tag EncodeKey accepts, except that an Int comes back as the Float of
// the same value, since both share the mcNumber tag (see DecodeKeyAsInt).
func DecodeKey(buf []byte) (Value, []byte, error) {
	return decodeKey(buf, false)
}

// DecodeKeyAsInt behaves like DecodeKey, except that an mcNumber component
// decodes as an Int rather than a Float. Callers that know a key column's
// declared type (the catalog package does, via Column.Type) use this to
// recover the original Int/Float distinction that the shared mcNumber tag
// otherwise discards.
func DecodeKeyAsInt(buf []byte) (Value, []byte, error) {
	return decodeKey(buf, true)
}

func decodeKey(buf []byte, asInt bool) (Value, []byte, error) {
	if len(buf) == 0 {
		return Value{}, nil, cozoerr.ErrInternal.New("cannot decode value from empty buffer")
	}
	tag, rest := buf[0], buf[1:]
	switch tag {
	case mcNull:
		return Null(), rest, nil
	case mcBoolFalse:
		return Bool(false), rest, nil
	case mcBoolTrue:
		return Bool(true), rest, nil
	case mcNumber:
		if asInt {
			if len(rest) < 8 {
				return Value{}, nil, cozoerr.ErrInternal.New("truncated number in memcomparable key")
			}
			var tmp [8]byte
			copy(tmp[:], rest[:8])
			return Int(DecodeOrderedInt(tmp)), rest[8:], nil
		}
		return decodeOrderedNumber(rest)
	case mcString:
		raw, rest2, err := decodeEscapedBytes(rest)
		if err != nil {
			return Value{}, nil, err
		}
		return String(string(raw)), rest2, nil
	case mcBytes:
		raw, rest2, err := decodeEscapedBytes(rest)
		if err != nil {
			return Value{}, nil, err
		}
		return Bytes(raw), rest2, nil
	case mcList:
		var elems []Value
		cur := rest
		for {
			if len(cur) == 0 {
				return Value{}, nil, cozoerr.ErrInternal.New("truncated list in memcomparable key")
			}
			if cur[0] == mcListEnd {
				return List(elems...), cur[1:], nil
			}
			var elem Value
			var err error
			elem, cur, err = DecodeKey(cur)
			if err != nil {
				return Value{}, nil, err
			}
			elems = append(elems, elem)
		}
	case mcUuid:
		if len(rest) < 16 {
			return Value{}, nil, cozoerr.ErrInternal.New("truncated uuid in memcomparable key")
		}
		u, err := uuid.FromBytes(rest[:16])
		if err != nil {
			return Value{}, nil, cozoerr.ErrInternal.New("invalid uuid bytes: " + err.Error())
		}
		return UUID(u), rest[16:], nil
	default:
		return Value{}, nil, cozoerr.ErrInternal.New("unknown memcomparable tag byte")
	}
}

// decodeOrderedNumber has no self-describing int-vs-float marker in the
// wire format (both share the mcNumber tag, since the ordering transform is
// defined over the same 8-byte width); the composite-key decoder therefore
// relies on the relation's declared column type to know which to produce.
// Used standalone (e.g. in tests), it decodes as a Float, since that is the
// wider domain; callers that know the column is Int should use
// DecodeOrderedInt directly.
func decodeOrderedNumber(buf []byte) (Value, []byte, error) {
	if len(buf) < 8 {
		return Value{}, nil, cozoerr.ErrInternal.New("truncated number in memcomparable key")
	}
	f := DecodeOrderedFloat(buf[:8])
	return Float(f), buf[8:], nil
}

// DecodeOrderedInt inverts encodeOrderedInt.
func DecodeOrderedInt(buf [8]byte) int64 {
	u := binary.BigEndian.Uint64(buf[:])
	return int64(u ^ (uint64(1) << 63))
}

// DecodeOrderedFloat inverts encodeOrderedFloat.
func DecodeOrderedFloat(buf []byte) float64 {
	var tmp [8]byte
	copy(tmp[:], buf)
	bits := binary.BigEndian.Uint64(tmp[:])
	if bits&(uint64(1)<<63) != 0 {
		bits &^= uint64(1) << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits)
}

func decodeEscapedBytes(buf []byte) ([]byte, []byte, error) {
	var out []byte
	i := 0
	for {
		if i+1 >= len(buf) {
			return nil, nil, cozoerr.ErrInternal.New("truncated escaped byte string in memcomparable key")
		}
		if buf[i] == 0x00 {
			switch buf[i+1] {
			case 0xFF:
				out = append(out, 0x00)
				i += 2
				continue
			case 0x00:
				return out, buf[i+2:], nil
			default:
				return nil, nil, cozoerr.ErrInternal.New("invalid escape sequence in memcomparable byte string")
			}
		}
		out = append(out, buf[i])
		i++
	}
}
