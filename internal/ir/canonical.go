package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 style canonical JSON.
// This is the only serialization used for form hashes, journal snapshots and
// golden traces, so that equal content always yields identical bytes.
//
// Differences from json.Marshal:
//  1. Object keys sorted by UTF-16 code units
//  2. No HTML escaping (< > & are NOT escaped)
//  3. Strings are NFC normalized
//  4. No floats and no null (returns error)
//
// Accepted values: string, bool, int, int64, []any, []string,
// map[string]any, map[string]string. Use ToCanonical for structs.
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ToCanonical converts any JSON-marshalable value to the generic form
// MarshalCanonical accepts. Integral numbers become int64; fractional numbers
// and nulls are rejected.
func ToCanonical(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("to canonical: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("to canonical: %w", err)
	}
	return normalizeNumbers(generic)
}

func normalizeNumbers(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("floats are forbidden in canonical JSON: %s", val)
		}
		return n, nil
	case []any:
		for i, elem := range val {
			conv, err := normalizeNumbers(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			val[i] = conv
		}
		return val, nil
	case map[string]any:
		for k, elem := range val {
			conv, err := normalizeNumbers(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			val[k] = conv
		}
		return val, nil
	default:
		return val, nil
	}
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("null is forbidden in canonical JSON")
	case string:
		return writeCanonicalString(buf, val)
	case Reference:
		return writeCanonicalString(buf, string(val))
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case int:
		fmt.Fprintf(buf, "%d", val)
		return nil
	case int64:
		fmt.Fprintf(buf, "%d", val)
		return nil
	case []string:
		arr := make([]any, len(val))
		for i, s := range val {
			arr[i] = s
		}
		return writeCanonicalArray(buf, arr)
	case []any:
		return writeCanonicalArray(buf, val)
	case map[string]string:
		obj := make(map[string]any, len(val))
		for k, s := range val {
			obj[k] = s
		}
		return writeCanonicalObject(buf, obj)
	case map[string]any:
		return writeCanonicalObject(buf, val)
	case float32, float64:
		return fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

func writeCanonicalArray(buf *bytes.Buffer, arr []any) error {
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonical(buf, elem); err != nil {
			return fmt.Errorf("array[%d]: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return nil
}

func writeCanonicalObject(buf *bytes.Buffer, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonicalString(buf, k); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		buf.WriteByte(':')
		if err := writeCanonical(buf, obj[k]); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// writeCanonicalString writes an NFC-normalized JSON string.
// Only control characters, backslash and quote are escaped; U+2028 and
// U+2029 stay literal even though encoding/json escapes them.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	out := bytes.TrimSuffix(tmp.Bytes(), []byte("\n"))

	for i := 0; i < len(out); i++ {
		c := out[i]
		if c != '\\' || i+1 >= len(out) {
			buf.WriteByte(c)
			continue
		}
		if out[i+1] == 'u' && i+6 <= len(out) && string(out[i+2:i+5]) == "202" && (out[i+5] == '8' || out[i+5] == '9') {
			if out[i+5] == '8' {
				buf.WriteString("\u2028")
			} else {
				buf.WriteString("\u2029")
			}
			i += 5
			continue
		}
		// Any other escape is copied whole so "\\u2028" stays escaped.
		buf.WriteByte(c)
		buf.WriteByte(out[i+1])
		i++
	}
	return nil
}

// compareUTF16 orders strings by UTF-16 code units.
// Go's string comparison uses UTF-8 bytes, which differs for
// supplementary-plane characters.
func compareUTF16(a, b string) int {
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			if ua[i] < ub[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(ua) < len(ub):
		return -1
	case len(ua) > len(ub):
		return 1
	}
	return 0
}
