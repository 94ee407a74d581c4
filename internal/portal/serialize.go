package portal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// prettyWidth is the target line width for materialized item JSON.
const prettyWidth = 100

// decode parses JSON keeping numbers verbatim, so round-tripping
// never reformats 1e9 into a float.
func decode(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	// Trailing garbage after the first value is still invalid JSON.
	if dec.More() {
		return nil, fmt.Errorf("unexpected trailing content")
	}
	return v, nil
}

// MinifyJSON renders text as compact JSON with sorted object keys.
// Whitespace-only differences between two documents disappear under
// this normalization, which is what no-op save detection relies on.
func MinifyJSON(text string) (string, error) {
	v, err := decode(text)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// CoerceContent normalizes content for create/update payloads: JSON
// text is re-serialized through parse+stringify, anything else passes
// through unchanged.
func CoerceContent(content string) string {
	min, err := MinifyJSON(content)
	if err != nil {
		return content
	}
	return min
}

// PrettyJSON formats JSON text for display: stable key order, two
// space indent, and short arrays/objects kept on one line when they
// fit the target width. Non-JSON text is returned unchanged.
func PrettyJSON(text string) string {
	v, err := decode(text)
	if err != nil {
		return text
	}
	var buf bytes.Buffer
	writePretty(&buf, v, 0)
	return buf.String()
}

func writePretty(buf *bytes.Buffer, v any, indent int) {
	compact := compactString(v)
	if indent+len(compact) <= prettyWidth {
		buf.WriteString(compact)
		return
	}

	pad := strings.Repeat(" ", indent+2)
	switch val := v.(type) {
	case map[string]any:
		if len(val) == 0 {
			buf.WriteString("{}")
			return
		}
		buf.WriteString("{\n")
		keys := sortedKeys(val)
		for i, k := range keys {
			buf.WriteString(pad)
			buf.WriteString(marshalScalar(k))
			buf.WriteString(": ")
			writePretty(buf, val[k], indent+2)
			if i < len(keys)-1 {
				buf.WriteByte(',')
			}
			buf.WriteByte('\n')
		}
		buf.WriteString(strings.Repeat(" ", indent))
		buf.WriteByte('}')
	case []any:
		if len(val) == 0 {
			buf.WriteString("[]")
			return
		}
		buf.WriteString("[\n")
		for i, item := range val {
			buf.WriteString(pad)
			writePretty(buf, item, indent+2)
			if i < len(val)-1 {
				buf.WriteByte(',')
			}
			buf.WriteByte('\n')
		}
		buf.WriteString(strings.Repeat(" ", indent))
		buf.WriteByte(']')
	default:
		buf.WriteString(compact)
	}
}

func compactString(v any) string {
	switch val := v.(type) {
	case map[string]any:
		parts := make([]string, 0, len(val))
		for _, k := range sortedKeys(val) {
			parts = append(parts, marshalScalar(k)+": "+compactString(val[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, compactString(item))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return marshalScalar(v)
	}
}

func marshalScalar(v any) string {
	out, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(out)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
