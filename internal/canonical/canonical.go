// Package canonical provides the deterministic JSON form that idempotency
// hashing is defined over.
//
// Two payloads that differ only in object-key order or insignificant
// whitespace canonicalize to identical bytes, so their content hashes match.
// The canonical form is: object keys sorted lexicographically, no inter-token
// whitespace, non-ASCII characters kept literal. Values decoded with
// json.Decoder.UseNumber() round-trip without float mangling because
// json.Number is emitted verbatim.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Canonicalize returns the deterministic byte form of a JSON value.
// The input is anything produced by decoding JSON into interface{} values
// (maps, slices, strings, json.Number, float64, bool, nil).
func Canonicalize(v any) []byte {
	var buf bytes.Buffer
	writeValue(&buf, v)
	return buf.Bytes()
}

// ContentHash returns the lowercase hex SHA-256 of the canonical form.
func ContentHash(v any) string {
	sum := sha256.Sum256(Canonicalize(v))
	return hex.EncodeToString(sum[:])
}

func writeValue(buf *bytes.Buffer, v any) {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		writeString(buf, val)
	case json.Number:
		buf.WriteString(string(val))
	case float64:
		writeFloat(buf, val)
	case int:
		buf.WriteString(strconv.Itoa(val))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case map[string]any:
		writeObject(buf, val)
	case []any:
		writeArray(buf, val)
	default:
		// Structs etc. that arrive via typed callers: round-trip through
		// encoding/json so they canonicalize the same as a decoded map.
		b, err := json.Marshal(val)
		if err != nil {
			// Well-formed JSON values cannot fail; anything else is a
			// programming error on the caller's side.
			panic(fmt.Sprintf("canonical: unencodable value %T: %v", val, err))
		}
		var generic any
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		if err := dec.Decode(&generic); err != nil {
			panic(fmt.Sprintf("canonical: re-decode failed: %v", err))
		}
		writeValue(buf, generic)
	}
}

func writeObject(buf *bytes.Buffer, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, k)
		buf.WriteByte(':')
		writeValue(buf, m[k])
	}
	buf.WriteByte('}')
}

func writeArray(buf *bytes.Buffer, a []any) {
	buf.WriteByte('[')
	for i, v := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeValue(buf, v)
	}
	buf.WriteByte(']')
}

// writeFloat matches encoding/json's float formatting, so a value that
// reaches the canonicalizer as float64 rather than json.Number still emits
// the same bytes encoding/json would (100000000, not 1e+08).
func writeFloat(buf *bytes.Buffer, f float64) {
	format := byte('f')
	if abs := math.Abs(f); abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	b := strconv.AppendFloat(nil, f, format, -1, 64)
	if format == 'e' {
		// 1e-09 -> 1e-9, as encoding/json does
		if n := len(b); n >= 4 && b[n-4] == 'e' && b[n-3] == '-' && b[n-2] == '0' {
			b[n-2] = b[n-1]
			b = b[:n-1]
		}
	}
	buf.Write(b)
}

// writeString emits a JSON string with only the escapes the encoding
// requires. Non-ASCII runes pass through literally; encoding/json's HTML
// escaping is disabled so the bytes are stable across encoders.
func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}
