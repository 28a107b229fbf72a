package artifact

import (
	"bytes"
	"fmt"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 canonical JSON for hashing.
// This is the ONLY serialization used for content-addressed identity and
// chain linking; persisted payloads reuse it so stored bytes re-hash to the
// same digest.
//
// Differences from encoding/json.Marshal:
//  1. Object keys sorted by UTF-16 code units (not UTF-8 bytes)
//  2. No HTML escaping (< > & pass through)
//  3. Strings are NFC normalized
//  4. Floats return an EncodingError
//  5. Nulls return an EncodingError
func MarshalCanonical(v any) ([]byte, error) {
	return marshalCanonical(v, "$")
}

func marshalCanonical(v any, path string) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, &EncodingError{Field: path, Message: "null is forbidden in canonical JSON"}
	case Text:
		return marshalCanonicalString(string(val)), nil
	case Int:
		return strconv.AppendInt(nil, int64(val), 10), nil
	case Bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case List:
		return marshalCanonicalList(val, path)
	case Object:
		return marshalCanonicalObject(val, path)
	case string:
		return marshalCanonicalString(val), nil
	case int:
		return strconv.AppendInt(nil, int64(val), 10), nil
	case int64:
		return strconv.AppendInt(nil, val, 10), nil
	case bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case float32, float64:
		return nil, &EncodingError{Field: path, Message: fmt.Sprintf("floats are forbidden in canonical JSON: %v", val)}
	default:
		return nil, &EncodingError{Field: path, Message: fmt.Sprintf("unsupported type for canonical JSON: %T", v)}
	}
}

func marshalCanonicalList(arr List, path string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := marshalCanonical(elem, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func marshalCanonicalObject(obj Object, path string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(marshalCanonicalString(k))
		buf.WriteByte(':')
		b, err := marshalCanonical(obj[k], path+"."+k)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalCanonicalString emits a canonical JSON string literal.
//
// The escaper is written by hand rather than delegating to json.Encoder:
// RFC 8785 requires that <, >, &, U+2028, and U+2029 pass through
// unescaped, while encoding/json escapes all of them for HTML/JS embedding.
// Only the quote, backslash, and C0 control characters are escaped, with
// the short forms (\n, \t, ...) where JSON defines them.
func marshalCanonicalString(s string) []byte {
	normalized := norm.NFC.String(s)

	buf := make([]byte, 0, len(normalized)+2)
	buf = append(buf, '"')
	for _, r := range normalized {
		switch r {
		case '"':
			buf = append(buf, '\\', '"')
		case '\\':
			buf = append(buf, '\\', '\\')
		case '\b':
			buf = append(buf, '\\', 'b')
		case '\f':
			buf = append(buf, '\\', 'f')
		case '\n':
			buf = append(buf, '\\', 'n')
		case '\r':
			buf = append(buf, '\\', 'r')
		case '\t':
			buf = append(buf, '\\', 't')
		default:
			if r < 0x20 {
				buf = append(buf, fmt.Sprintf(`\u%04x`, r)...)
			} else {
				buf = append(buf, string(r)...)
			}
		}
	}
	buf = append(buf, '"')
	return buf
}
