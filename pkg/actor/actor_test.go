package actor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedwatch/feedwatch/pkg/bus"
	"github.com/feedwatch/feedwatch/pkg/plugin"
	"github.com/feedwatch/feedwatch/pkg/record"
)

type recordingHandler struct {
	handled []record.Record
	err     error
	panics  bool
}

func (h *recordingHandler) Handle(entity plugin.Entity, rec record.Record) error {
	if h.panics {
		panic("boom")
	}
	h.handled = append(h.handled, rec)
	return h.err
}

func entities(names ...string) []plugin.Entity {
	out := make([]plugin.Entity, 0, len(names))
	for _, name := range names {
		out = append(out, &plugin.BaseEntity{Name: name})
	}
	return out
}

func TestDispatchDeliversToHandler(t *testing.T) {
	b := bus.New()
	h := &recordingHandler{}
	_, err := NewBase("act", b, entities("e1"), h, nil)
	require.NoError(t, err)

	rec := &record.TextRecord{Text: "x"}
	b.Publish(bus.IncomingTopicFor("act", "e1"), rec)

	require.Len(t, h.handled, 1)
	assert.Same(t, rec, h.handled[0])
}

func TestConstructionSubscribesOncePerEntity(t *testing.T) {
	b := bus.New()
	h := &recordingHandler{}
	_, err := NewBase("act", b, entities("e1", "e2"), h, nil)
	require.NoError(t, err)

	b.Publish(bus.IncomingTopicFor("act", "e1"), &record.TextRecord{Text: "x"})
	assert.Len(t, h.handled, 1, "exactly one subscription per entity")
}

func TestDuplicateEntityNamesRejected(t *testing.T) {
	b := bus.New()
	_, err := NewBase("act", b, entities("e1", "e1"), &recordingHandler{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate entity name")
}

func TestUnknownEntityDropped(t *testing.T) {
	b := bus.New()
	h := &recordingHandler{}
	_, err := NewBase("act", b, entities("e1"), h, nil)
	require.NoError(t, err)

	b.Publish(bus.IncomingTopicFor("act", "ghost"), &record.TextRecord{Text: "x"})
	assert.Empty(t, h.handled)
}

func TestUnsupportedKindForwardedAndStillHandled(t *testing.T) {
	b := bus.New()
	h := &recordingHandler{}
	_, err := NewBase("act", b, entities("e1"), h, []string{"Event"})
	require.NoError(t, err)

	var forwarded []record.Record
	b.Subscribe(bus.OutgoingTopicFor("act", "e1"), func(topic string, rec record.Record) {
		forwarded = append(forwarded, rec)
	})

	// a TextRecord is not an Event: it passes through untouched and the
	// handler still sees it
	rec := &record.TextRecord{Text: "x"}
	b.Publish(bus.IncomingTopicFor("act", "e1"), rec)
	assert.Len(t, forwarded, 1)
	assert.Len(t, h.handled, 1)

	// a supported record is handled but not auto-forwarded
	forwarded = nil
	h.handled = nil
	b.Publish(bus.IncomingTopicFor("act", "e1"), &record.Event{EventType: record.EventGeneric, Text: "e"})
	assert.Empty(t, forwarded)
	assert.Len(t, h.handled, 1)
}

func TestHandlerErrorDoesNotPropagate(t *testing.T) {
	b := bus.New()
	h := &recordingHandler{err: errors.New("handler failed")}
	_, err := NewBase("act", b, entities("e1"), h, nil)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		b.Publish(bus.IncomingTopicFor("act", "e1"), &record.TextRecord{Text: "x"})
	})
}

func TestHandlerPanicDoesNotPropagate(t *testing.T) {
	b := bus.New()
	failing := &recordingHandler{panics: true}
	_, err := NewBase("bad", b, entities("e1"), failing, nil)
	require.NoError(t, err)

	// a later subscriber on the same topic still receives the record
	after := 0
	b.Subscribe(bus.IncomingTopicFor("bad", "e1"), func(topic string, rec record.Record) {
		after++
	})

	assert.NotPanics(t, func() {
		b.Publish(bus.IncomingTopicFor("bad", "e1"), &record.TextRecord{Text: "x"})
	})
	assert.Equal(t, 1, after)
}

func TestEmitPublishesOnOutgoingTopic(t *testing.T) {
	b := bus.New()
	h := &recordingHandler{}
	base, err := NewBase("act", b, entities("e1"), h, nil)
	require.NoError(t, err)

	var got []record.Record
	b.Subscribe(bus.OutgoingTopicFor("act", "e1"), func(topic string, rec record.Record) {
		got = append(got, rec)
	})

	base.Emit(base.Entities()["e1"], &record.TextRecord{Text: "x"})
	assert.Len(t, got, 1)
}

type keepFoo struct{}

func (keepFoo) Match(_ plugin.Entity, rec record.Record) (record.Record, bool) {
	if rec.Display() == "foo" {
		return rec, true
	}
	return nil, false
}

func TestFilterBaseEmitsMatchesOnly(t *testing.T) {
	b := bus.New()
	_, err := NewFilterBase("flt", b, entities("e1"), keepFoo{})
	require.NoError(t, err)

	var got []string
	b.Subscribe(bus.OutgoingTopicFor("flt", "e1"), func(topic string, rec record.Record) {
		got = append(got, rec.Display())
	})

	b.Publish(bus.IncomingTopicFor("flt", "e1"), &record.TextRecord{Text: "foo"})
	b.Publish(bus.IncomingTopicFor("flt", "e1"), &record.TextRecord{Text: "bar"})
	assert.Equal(t, []string{"foo"}, got)
}
