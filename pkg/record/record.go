package record

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// MaxDebugLen is the maximum length of the short record form used in logs.
const MaxDebugLen = 60

// TimeLayout is the stable rendering of timestamps inside canonical JSON.
// Hashes depend on it; it must never change.
const TimeLayout = "2006-01-02 15:04:05-07:00"

// Record is a data entry, passed around from monitors to actions through
// filters. Implementations are value-like: all state is visible via Fields.
type Record interface {
	// Kind returns the concrete kind name, e.g. "TextRecord"
	Kind() string

	// Ancestors returns the kind lineage, most specific first, ending
	// with "Record". Used by type-based filters.
	Ancestors() []string

	// Display returns the long text form of the record, the one sent in
	// messages and written to files
	Display() string

	// Debug returns the short text form of the record used in logs
	Debug() string

	// Fields returns a flat view of the record's fields for hashing,
	// templating and persistence
	Fields() map[string]any
}

// CanonicalJSON serializes a field map deterministically: keys sorted,
// non-ASCII preserved, timestamps rendered with TimeLayout. The result is
// stable across restarts and across field insertion order.
func CanonicalJSON(fields map[string]any) string {
	var buf bytes.Buffer
	writeCanonical(&buf, fields, "")
	return buf.String()
}

// CanonicalJSONIndent is CanonicalJSON with 4-space indentation.
func CanonicalJSONIndent(fields map[string]any) string {
	var out bytes.Buffer
	if err := json.Indent(&out, []byte(CanonicalJSON(fields)), "", "    "); err != nil {
		return CanonicalJSON(fields)
	}
	return out.String()
}

func writeCanonical(buf *bytes.Buffer, value any, _ string) {
	switch v := value.(type) {
	case nil:
		buf.WriteString("null")
	case time.Time:
		writeJSONString(buf, v.Format(TimeLayout))
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeJSONString(buf, k)
			buf.WriteByte(':')
			writeCanonical(buf, v[k], "")
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonical(buf, item, "")
		}
		buf.WriteByte(']')
	case []string:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeJSONString(buf, item)
		}
		buf.WriteByte(']')
	default:
		enc := json.NewEncoder(buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v); err != nil {
			writeJSONString(buf, fmt.Sprintf("%v", v))
			return
		}
		// Encode appends a newline the canonical form must not contain
		buf.Truncate(buf.Len() - 1)
	}
}

func writeJSONString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	buf.Truncate(buf.Len() - 1)
}

// Hash returns the SHA-1 hex digest of the record's canonical JSON.
func Hash(r Record) string {
	sum := sha1.Sum([]byte(CanonicalJSON(r.Fields())))
	return hex.EncodeToString(sum[:])
}

var placeholderRe = regexp.MustCompile(`\{[^{}]+\}`)

// Format substitutes {field} placeholders in the template from a field map;
// placeholders without a matching field become the missing text.
func Format(template string, fields map[string]any, missing string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(placeholder string) string {
		name := placeholder[1 : len(placeholder)-1]
		value, ok := fields[name]
		if !ok {
			return missing
		}
		return FieldString(value)
	})
}

// FieldString renders a single field value the way it appears in the
// canonical JSON, without quoting.
func FieldString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case time.Time:
		return value.Format(TimeLayout)
	default:
		return fmt.Sprintf("%v", value)
	}
}

// Shorten collapses whitespace in s and truncates it to at most n runes,
// marking truncation with a trailing ellipsis.
func Shorten(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return strings.TrimRight(string(runes[:n-3]), " ") + "..."
}
