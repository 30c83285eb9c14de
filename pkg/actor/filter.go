package actor

import (
	"github.com/feedwatch/feedwatch/pkg/bus"
	"github.com/feedwatch/feedwatch/pkg/plugin"
	"github.com/feedwatch/feedwatch/pkg/record"
)

// Matcher is the filter sub-contract: take a record and return the record to
// pass on (possibly transformed), or false to drop it.
type Matcher interface {
	Match(entity plugin.Entity, rec record.Record) (record.Record, bool)
}

// FilterBase adapts a Matcher to the actor dispatch: matches are emitted on
// the outgoing topic, everything else is silently dropped.
type FilterBase struct {
	*Base
	matcher Matcher
}

// NewFilterBase builds a passive filter actor around the matcher.
func NewFilterBase(name string, b *bus.Bus, entities []plugin.Entity, matcher Matcher) (*FilterBase, error) {
	f := &FilterBase{matcher: matcher}
	base, err := NewBase(name, b, entities, f, nil)
	if err != nil {
		return nil, err
	}
	f.Base = base
	return f, nil
}

// Handle implements Handler.
func (f *FilterBase) Handle(entity plugin.Entity, rec record.Record) error {
	filtered, ok := f.matcher.Match(entity, rec)
	if !ok {
		f.Logger.Debug().Str("entity", entity.EntityName()).Str("record", rec.Debug()).
			Msg("record dropped by filter")
		return nil
	}
	f.Emit(entity, filtered)
	return nil
}
