// Package canonical computes stable content fingerprints for document
// payloads. Two payloads that differ only in map key order or in the
// presence of null/absent optional fields produce the same fingerprint.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Fingerprint returns the 64-character lowercase hex SHA-256 digest of the
// canonical serialization of v. It is a total function: nil and empty
// payloads hash to a fixed digest. Passing a value that cannot be
// serialized (channels, functions, NaN) is a caller bug and panics.
func Fingerprint(v interface{}) string {
	var b strings.Builder
	writeCanonical(&b, normalize(v))
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// FingerprintJSON parses raw JSON and fingerprints the result, so callers
// holding serialized payloads (queue records, request bodies) get the same
// digest as callers holding the decoded structure.
func FingerprintJSON(raw []byte) (string, error) {
	if len(raw) == 0 {
		return Fingerprint(nil), nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("parse payload: %w", err)
	}
	return Fingerprint(v), nil
}

// normalize converts v into a tree of map[string]interface{}, []interface{}
// and scalars, dropping nil map values so that null and absent keys are
// equivalent. Slice order is preserved; it is semantically meaningful.
func normalize(v interface{}) interface{} {
	if v == nil {
		return nil
	}

	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			n := normalize(val)
			if n == nil {
				continue
			}
			out[k] = n
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case string, bool:
		return t
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		rv := reflect.ValueOf(t)
		if rv.CanInt() {
			return float64(rv.Int())
		}
		return float64(rv.Uint())
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			panic(fmt.Sprintf("canonical: unrepresentable number %q", t))
		}
		return f
	}

	// Structs, typed maps and typed slices round-trip through encoding/json
	// so their canonical form matches what a client sending JSON would get.
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("canonical: unserializable payload of type %T: %v", v, err))
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		panic(fmt.Sprintf("canonical: reparse payload: %v", err))
	}
	return normalize(generic)
}

// writeCanonical serializes a normalized tree deterministically: object keys
// sorted lexicographically, numbers in shortest round-trip form, strings
// JSON-escaped.
func writeCanonical(b *strings.Builder, v interface{}) {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if t {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			panic("canonical: non-finite number in payload")
		}
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			b.WriteString(strconv.FormatInt(int64(t), 10))
		} else {
			b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
		}
	case string:
		enc, _ := json.Marshal(t)
		b.Write(enc)
	case []interface{}:
		b.WriteByte('[')
		for i, el := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, el)
		}
		b.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			enc, _ := json.Marshal(k)
			b.Write(enc)
			b.WriteByte(':')
			writeCanonical(b, t[k])
		}
		b.WriteByte('}')
	default:
		panic(fmt.Sprintf("canonical: unexpected node type %T", v))
	}
}
