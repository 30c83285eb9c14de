package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/feedwatch/feedwatch/pkg/bus"
	"github.com/feedwatch/feedwatch/pkg/record"
)

func TestChainForwardsThroughStages(t *testing.T) {
	b := bus.New()

	// handlers standing in for the consumers' dispatchers
	var reachedB, reachedC []string
	b.Subscribe(bus.IncomingTopicFor("B", "b1"), func(topic string, rec record.Record) {
		reachedB = append(reachedB, rec.Display())
		// B emits downstream like a filter would
		b.Publish(bus.OutgoingTopicFor("B", "b1"), rec)
	})
	b.Subscribe(bus.IncomingTopicFor("C", "c1"), func(topic string, rec record.Record) {
		reachedC = append(reachedC, rec.Display())
	})

	New("test", []Stage{
		{Actor: "A", Entities: []string{"a1"}},
		{Actor: "B", Entities: []string{"b1"}},
		{Actor: "C", Entities: []string{"c1"}},
	}, b)

	b.Publish(bus.OutgoingTopicFor("A", "a1"), &record.TextRecord{Text: "one"})
	b.Publish(bus.OutgoingTopicFor("A", "a1"), &record.TextRecord{Text: "two"})

	assert.Equal(t, []string{"one", "two"}, reachedB, "records reach B exactly once, in order")
	assert.Equal(t, []string{"one", "two"}, reachedC, "records reach C exactly once, in order")
}

func TestChainDoesNotDeliverBackwards(t *testing.T) {
	b := bus.New()
	var reachedA int
	b.Subscribe(bus.IncomingTopicFor("A", "a1"), func(topic string, rec record.Record) {
		reachedA++
	})

	New("test", []Stage{
		{Actor: "A", Entities: []string{"a1"}},
		{Actor: "B", Entities: []string{"b1"}},
	}, b)

	b.Publish(bus.OutgoingTopicFor("A", "a1"), &record.TextRecord{Text: "x"})
	assert.Zero(t, reachedA, "a stage never receives its own output")
}

func TestChainFansOutAcrossEntities(t *testing.T) {
	b := bus.New()
	got := map[string]int{}
	for _, entity := range []string{"b1", "b2"} {
		name := entity
		b.Subscribe(bus.IncomingTopicFor("B", name), func(topic string, rec record.Record) {
			got[name]++
		})
	}

	New("test", []Stage{
		{Actor: "A", Entities: []string{"a1", "a2"}},
		{Actor: "B", Entities: []string{"b1", "b2"}},
	}, b)

	b.Publish(bus.OutgoingTopicFor("A", "a1"), &record.TextRecord{Text: "x"})
	b.Publish(bus.OutgoingTopicFor("A", "a2"), &record.TextRecord{Text: "y"})

	assert.Equal(t, 2, got["b1"])
	assert.Equal(t, 2, got["b2"])
}

func TestShortChainIsInert(t *testing.T) {
	b := bus.New()
	c := New("short", []Stage{{Actor: "A", Entities: []string{"a1"}}}, b)
	assert.NotNil(t, c)
	assert.NotPanics(t, func() {
		b.Publish(bus.OutgoingTopicFor("A", "a1"), &record.TextRecord{Text: "x"})
	})
}
