// Package filters provides the built-in record filters: pass-through,
// drop-all, substring matching and exclusion, event and kind selection, and
// the json/format rewrites.
package filters

import (
	"encoding/json"
	"strings"

	"github.com/feedwatch/feedwatch/pkg/actor"
	"github.com/feedwatch/feedwatch/pkg/plugin"
	"github.com/feedwatch/feedwatch/pkg/record"
)

// newFilterFactory builds the registry triple shared by all filters: empty
// config, a typed entity, a passive FilterBase actor around the matcher.
func newFilterFactory(newEntity func() plugin.Entity, matcher actor.Matcher) plugin.Factory {
	return plugin.Factory{
		NewConfig: func() plugin.Config { return &plugin.BaseConfig{} },
		NewEntity: newEntity,
		NewActor: func(cfg plugin.Config, entities []plugin.Entity, deps plugin.Deps) (plugin.Actor, error) {
			return actor.NewFilterBase(cfg.ActorName(), deps.Bus, entities, matcher)
		},
	}
}

func init() {
	plugin.Register("filter.noop", newFilterFactory(
		func() plugin.Entity { return &plugin.BaseEntity{} }, noopMatcher{}))
	plugin.Register("filter.void", newFilterFactory(
		func() plugin.Entity { return &plugin.BaseEntity{} }, voidMatcher{}))
	plugin.Register("filter.match", newFilterFactory(
		func() plugin.Entity { return &PatternEntity{} }, matchMatcher{}))
	plugin.Register("filter.exclude", newFilterFactory(
		func() plugin.Entity { return &PatternEntity{} }, excludeMatcher{}))
	plugin.Register("filter.event", newFilterFactory(
		func() plugin.Entity { return &EventEntity{} }, eventMatcher{}))
	plugin.Register("filter.type", newFilterFactory(
		func() plugin.Entity { return &TypeEntity{} }, typeMatcher{}))
	plugin.Register("filter.json", newFilterFactory(
		func() plugin.Entity { return &JSONEntity{} }, jsonMatcher{}))
	plugin.Register("filter.format", newFilterFactory(
		func() plugin.Entity { return &FormatEntity{} }, formatMatcher{}))
}

// noopMatcher passes every record through unchanged.
type noopMatcher struct{}

func (noopMatcher) Match(_ plugin.Entity, rec record.Record) (record.Record, bool) {
	return rec, true
}

// voidMatcher drops every record.
type voidMatcher struct{}

func (voidMatcher) Match(_ plugin.Entity, _ record.Record) (record.Record, bool) {
	return nil, false
}

// PatternEntity configures the substring filters.
type PatternEntity struct {
	plugin.BaseEntity `yaml:",inline"`

	Patterns []string `yaml:"patterns"`
}

// matchMatcher passes a record if its display form contains any of the
// entity's patterns.
type matchMatcher struct{}

func (matchMatcher) Match(entity plugin.Entity, rec record.Record) (record.Record, bool) {
	for _, pattern := range entity.(*PatternEntity).Patterns {
		if strings.Contains(rec.Display(), pattern) {
			return rec, true
		}
	}
	return nil, false
}

// excludeMatcher drops a record if its display form contains any pattern.
type excludeMatcher struct{}

func (excludeMatcher) Match(entity plugin.Entity, rec record.Record) (record.Record, bool) {
	for _, pattern := range entity.(*PatternEntity).Patterns {
		if strings.Contains(rec.Display(), pattern) {
			return nil, false
		}
	}
	return rec, true
}

// EventEntity configures the event filter; an empty type list accepts any
// event.
type EventEntity struct {
	plugin.BaseEntity `yaml:",inline"`

	EventTypes []string `yaml:"event_types"`
}

// eventMatcher passes Event records (including registered event subtypes)
// whose event_type is in the configured set.
type eventMatcher struct{}

func (eventMatcher) Match(entity plugin.Entity, rec record.Record) (record.Record, bool) {
	isEvent := false
	for _, ancestor := range rec.Ancestors() {
		if ancestor == "Event" {
			isEvent = true
			break
		}
	}
	if !isEvent {
		return nil, false
	}
	types := entity.(*EventEntity).EventTypes
	if len(types) == 0 {
		return rec, true
	}
	recordType, _ := rec.Fields()["event_type"].(string)
	for _, eventType := range types {
		if recordType == eventType {
			return rec, true
		}
	}
	return nil, false
}

// TypeEntity configures the kind filter.
type TypeEntity struct {
	plugin.BaseEntity `yaml:",inline"`

	Types      []string `yaml:"types"`
	ExactMatch bool     `yaml:"exact_match"`
}

// typeMatcher passes records whose kind, or any ancestor kind unless
// exact_match is set, appears in the entity's type list.
type typeMatcher struct{}

func (typeMatcher) Match(entity plugin.Entity, rec record.Record) (record.Record, bool) {
	e := entity.(*TypeEntity)
	tested := rec.Ancestors()
	if e.ExactMatch {
		tested = []string{rec.Kind()}
	}
	for _, testedType := range tested {
		for _, allowed := range e.Types {
			if allowed == testedType {
				return rec, true
			}
		}
	}
	return nil, false
}

// JSONEntity configures the json rewrite filter.
type JSONEntity struct {
	plugin.BaseEntity `yaml:",inline"`

	Prettify bool `yaml:"prettify"`
}

// jsonMatcher replaces the record with a TextRecord of its canonical JSON.
// A record whose display form already is valid JSON is re-serialized
// canonically instead of being wrapped twice.
type jsonMatcher struct{}

func (jsonMatcher) Match(entity plugin.Entity, rec record.Record) (record.Record, bool) {
	e := entity.(*JSONEntity)
	var fields map[string]any
	if err := json.Unmarshal([]byte(rec.Display()), &fields); err != nil {
		fields = rec.Fields()
	}
	text := record.CanonicalJSON(fields)
	if e.Prettify {
		text = record.CanonicalJSONIndent(fields)
	}
	return &record.TextRecord{Text: text}, true
}

// FormatEntity configures the template filter.
type FormatEntity struct {
	plugin.BaseEntity `yaml:",inline"`

	// Fmt is the output template; {field} placeholders are substituted
	// from the record's fields
	Fmt string `yaml:"fmt"`

	// Missing replaces placeholders the record has no field for
	Missing string `yaml:"missing"`
}

type formatMatcher struct{}

func (formatMatcher) Match(entity plugin.Entity, rec record.Record) (record.Record, bool) {
	e := entity.(*FormatEntity)
	return &record.TextRecord{Text: record.Format(e.Fmt, rec.Fields(), e.Missing)}, true
}
