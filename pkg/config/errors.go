package config

import (
	"fmt"
	"strings"
)

// FieldError locates one malformed value inside the config document.
type FieldError struct {
	// Path is the document location, e.g. "Actors: rss: entities: news"
	Path string

	// Value is the offending value as written
	Value any

	// Msg is the human-readable explanation
	Msg string
}

func (e FieldError) String() string {
	return fmt.Sprintf("error parsing %q in config section %q: %s", fmt.Sprintf("%v", e.Value), e.Path, e.Msg)
}

// Error aggregates every validation failure found across the document, so a
// single run surfaces all of them instead of the first.
type Error struct {
	Fields []FieldError
}

func (e *Error) add(path string, value any, msg string) {
	e.Fields = append(e.Fields, FieldError{Path: path, Value: value, Msg: msg})
}

func (e *Error) addf(path string, value any, format string, args ...any) {
	e.add(path, value, fmt.Sprintf(format, args...))
}

func (e *Error) empty() bool { return len(e.Fields) == 0 }

func (e *Error) Error() string {
	lines := make([]string, 0, len(e.Fields)+1)
	lines = append(lines, "failed to process configuration file, following errors occurred:")
	for _, f := range e.Fields {
		lines = append(lines, f.String())
	}
	return strings.Join(lines, "\n    ")
}
