package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedwatch/feedwatch/pkg/bus"
	"github.com/feedwatch/feedwatch/pkg/plugin"
)

func taskEntity(name string, interval float64) *TaskEntity {
	return &TaskEntity{
		BaseEntity:            plugin.BaseEntity{Name: name},
		UpdateIntervalSeconds: interval,
	}
}

func TestGroupEntitiesStagger(t *testing.T) {
	entities := []plugin.Entity{
		taskEntity("a", 60),
		taskEntity("b", 60),
		taskEntity("c", 60),
		taskEntity("d", 10),
	}
	groups := groupEntities(entities)
	require.Len(t, groups, 2)

	// three entities sharing 60s stagger at 60/3 = 20s apart
	assert.Len(t, groups[0].entities, 3)
	assert.Equal(t, 20*time.Second, groups[0].offset)
	assert.Equal(t, "a", groups[0].entities[0].EntityName(), "insertion order preserved")
	assert.Equal(t, "b", groups[0].entities[1].EntityName())
	assert.Equal(t, "c", groups[0].entities[2].EntityName())

	// a lone entity gets the whole interval as offset, which is never slept
	assert.Len(t, groups[1].entities, 1)
	assert.Equal(t, 10*time.Second, groups[1].offset)
}

func TestBackoffLaw(t *testing.T) {
	state := &EntityState{Interval: 60 * time.Second, BaseInterval: 60 * time.Second}

	expected := []time.Duration{
		120 * time.Second,
		240 * time.Second,
		480 * time.Second,
		600 * time.Second, // capped at base*10
		600 * time.Second,
	}
	for i, want := range expected {
		state.Backoff()
		assert.Equal(t, want, state.Interval, "after %d failures", i+1)
	}

	state.Restore()
	assert.Equal(t, 60*time.Second, state.Interval)
}

func TestBackoffGlobalCap(t *testing.T) {
	base := time.Hour
	state := &EntityState{Interval: base, BaseInterval: base}
	for i := 0; i < 6; i++ {
		state.Backoff()
	}
	assert.Equal(t, MaxBackoffInterval, state.Interval, "backoff never exceeds four hours")
}

func TestTaskMonitorFailureIsolation(t *testing.T) {
	b := bus.New()
	var mu sync.Mutex
	polls := map[string]int{}

	m, err := NewTaskMonitor("mon", b, []plugin.Entity{
		taskEntity("healthy", 0.001),
		taskEntity("broken", 0.001),
	}, func(ctx context.Context, entity plugin.Entity, state *EntityState) error {
		mu.Lock()
		defer mu.Unlock()
		polls[entity.EntityName()]++
		if entity.EntityName() == "broken" {
			return assert.AnError
		}
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, m.Run(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, polls["broken"], "failing task terminates after its first error")
	assert.Greater(t, polls["healthy"], 5, "sibling keeps polling")
}

func TestTaskMonitorStopsOnCancel(t *testing.T) {
	b := bus.New()
	m, err := NewTaskMonitor("mon", b, []plugin.Entity{taskEntity("e", 0.001)},
		func(ctx context.Context, entity plugin.Entity, state *EntityState) error {
			return nil
		})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop on cancellation")
	}
}

func TestSleepCtx(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleepCtx(ctx, time.Hour), "cancelled context interrupts the sleep")
	assert.True(t, sleepCtx(context.Background(), time.Millisecond))
}
