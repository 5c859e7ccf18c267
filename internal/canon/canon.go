// Package canon implements the canonical-JSON encoding that the ledger hashes
// over. It is deliberately standalone (no dependency on the ledger package)
// so the idempotence law of spec section 8.11 can be tested in isolation.
package canon

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Marshal renders value as canonical JSON: object keys are NFKC-normalized
// and sorted lexicographically, arrays preserve order, numbers are emitted in
// their shortest round-trip form, and strings are JSON-escaped.
//
// value must already be the result of decoding JSON (i.e. map[string]any,
// []any, string, float64/json.Number, bool, or nil) or a Go value that
// encoding/json can marshal into one of those shapes.
func Marshal(value any) ([]byte, error) {
	normalized, err := toJSONShape(value)
	if err != nil {
		return nil, err
	}
	var buf strings.Builder
	if err := writeCanonical(&buf, normalized); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

// toJSONShape round-trips arbitrary Go values through encoding/json so callers
// can pass structs directly, matching the variety of payload shapes each
// event type defines in the projection framework.
func toJSONShape(value any) (any, error) {
	switch value.(type) {
	case map[string]any, []any, string, float64, bool, nil, json.Number:
		return value, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("canon: marshal input: %w", err)
	}
	decoder := json.NewDecoder(strings.NewReader(string(raw)))
	decoder.UseNumber()
	var shaped any
	if err := decoder.Decode(&shaped); err != nil {
		return nil, fmt.Errorf("canon: decode shaped input: %w", err)
	}
	return shaped, nil
}

func writeCanonical(buf *strings.Builder, value any) error {
	switch v := value.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case string:
		return writeCanonicalString(buf, v)
	case json.Number:
		return writeCanonicalNumber(buf, v)
	case float64:
		return writeCanonicalNumber(buf, json.Number(strconv.FormatFloat(v, 'g', -1, 64)))
	case []any:
		buf.WriteByte('[')
		for i, elem := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]any:
		return writeCanonicalObject(buf, v)
	default:
		return fmt.Errorf("canon: unsupported value type %T", value)
	}
}

func writeCanonicalObject(buf *strings.Builder, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	normalizedKeys := make(map[string]string, len(obj))
	for k := range obj {
		nk := norm.NFKC.String(k)
		normalizedKeys[k] = nk
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return normalizedKeys[keys[i]] < normalizedKeys[keys[j]]
	})

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonicalString(buf, normalizedKeys[k]); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := writeCanonical(buf, obj[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeCanonicalString(buf *strings.Builder, s string) error {
	encoded, err := json.Marshal(norm.NFKC.String(s))
	if err != nil {
		return fmt.Errorf("canon: escape string: %w", err)
	}
	buf.Write(encoded)
	return nil
}

// writeCanonicalNumber emits the shortest round-trip decimal form without
// exponent notation, per spec section 4.1.1.
func writeCanonicalNumber(buf *strings.Builder, n json.Number) error {
	s := n.String()
	if !strings.ContainsAny(s, "eE") {
		if strings.Contains(s, ".") {
			s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
		}
		buf.WriteString(s)
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("canon: parse number %q: %w", s, err)
	}
	buf.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
	return nil
}
