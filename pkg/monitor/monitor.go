package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/feedwatch/feedwatch/pkg/actor"
	"github.com/feedwatch/feedwatch/pkg/bus"
	"github.com/feedwatch/feedwatch/pkg/metrics"
	"github.com/feedwatch/feedwatch/pkg/plugin"
	"github.com/feedwatch/feedwatch/pkg/record"
)

// TaskEntity is the configured unit of work of a periodic monitor.
type TaskEntity struct {
	plugin.BaseEntity `yaml:",inline"`

	// UpdateIntervalSeconds is the configured poll cadence
	UpdateIntervalSeconds float64 `yaml:"update_interval"`
}

func (e *TaskEntity) UpdateInterval() time.Duration {
	return time.Duration(e.UpdateIntervalSeconds * float64(time.Second))
}

func (e *TaskEntity) Validate() error {
	if err := e.BaseEntity.Validate(); err != nil {
		return err
	}
	if e.UpdateIntervalSeconds <= 0 {
		e.UpdateIntervalSeconds = 60
	}
	return nil
}

// IntervalEntity is what the scheduler needs from a monitor entity.
type IntervalEntity interface {
	plugin.Entity
	UpdateInterval() time.Duration
}

// EntityState is the mutable per-entity runtime state, owned exclusively by
// the entity's task and kept apart from the validated configuration.
type EntityState struct {
	// Interval is the live poll cadence; backoff and cache adaptation
	// mutate it, the task re-reads it before every sleep
	Interval time.Duration

	// BaseInterval is the configured cadence the live value returns to
	BaseInterval time.Duration

	LastModified   string
	ETag           string
	LastRecordHash string
}

// Backoff applies the failure rule: the live interval doubles, capped at ten
// times the base and at MaxBackoffInterval. Reports whether it changed.
func (s *EntityState) Backoff() bool {
	next := s.Interval * 2
	if limit := s.BaseInterval * 10; next > limit {
		next = limit
	}
	if next > MaxBackoffInterval {
		next = MaxBackoffInterval
	}
	if s.Interval == next {
		return false
	}
	s.Interval = next
	return true
}

// Restore resets the live interval to the configured base after a backoff.
// Reports whether it changed.
func (s *EntityState) Restore() bool {
	if s.Interval == s.BaseInterval {
		return false
	}
	s.Interval = s.BaseInterval
	return true
}

// RunOnce performs one poll cycle for an entity. A returned error terminates
// that entity's task without affecting its siblings.
type RunOnce func(ctx context.Context, entity plugin.Entity, state *EntityState) error

// TaskMonitor drives one long-lived cooperative task per entity. Entities
// sharing an update interval are staggered across it at startup so their
// polls spread out instead of firing together.
type TaskMonitor struct {
	*actor.Base

	order   []plugin.Entity
	states  map[string]*EntityState
	runOnce RunOnce
}

// NewTaskMonitor builds the monitor base. Every entity must implement
// IntervalEntity; construction panics otherwise since that is a programming
// error in the plugin, not a configuration problem.
func NewTaskMonitor(name string, b *bus.Bus, entities []plugin.Entity, runOnce RunOnce) (*TaskMonitor, error) {
	m := &TaskMonitor{
		order:   entities,
		states:  make(map[string]*EntityState, len(entities)),
		runOnce: runOnce,
	}
	base, err := actor.NewBase(name, b, entities, m, nil)
	if err != nil {
		return nil, err
	}
	m.Base = base
	for _, entity := range entities {
		interval := entity.(IntervalEntity).UpdateInterval()
		m.states[entity.EntityName()] = &EntityState{
			Interval:     interval,
			BaseInterval: interval,
		}
	}
	return m, nil
}

// Handle implements the monitor side of the dispatch contract: records
// arriving on a monitor's incoming topic pass through to its outgoing one.
func (m *TaskMonitor) Handle(entity plugin.Entity, rec record.Record) error {
	m.Emit(entity, rec)
	return nil
}

// State returns the runtime state of the named entity.
func (m *TaskMonitor) State(entityName string) *EntityState {
	return m.states[entityName]
}

// EmitRecord publishes a produced record and counts it.
func (m *TaskMonitor) EmitRecord(entity plugin.Entity, rec record.Record) {
	metrics.RecordsEmittedTotal.WithLabelValues(m.Name(), entity.EntityName()).Inc()
	m.Emit(entity, rec)
}

// entityGroup is a set of entities sharing one update interval, launched
// with a startup offset of interval divided by group size.
type entityGroup struct {
	entities []plugin.Entity
	offset   time.Duration
}

// groupEntities splits entities by update interval, preserving insertion
// order within each group.
func groupEntities(entities []plugin.Entity) []entityGroup {
	var order []time.Duration
	byInterval := make(map[time.Duration][]plugin.Entity)
	for _, entity := range entities {
		interval := entity.(IntervalEntity).UpdateInterval()
		if _, seen := byInterval[interval]; !seen {
			order = append(order, interval)
		}
		byInterval[interval] = append(byInterval[interval], entity)
	}
	groups := make([]entityGroup, 0, len(order))
	for _, interval := range order {
		group := byInterval[interval]
		groups = append(groups, entityGroup{
			entities: group,
			offset:   interval / time.Duration(len(group)),
		})
	}
	return groups
}

// Run starts the per-entity tasks and blocks until the context is done and
// every task has returned.
func (m *TaskMonitor) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, group := range groupEntities(m.order) {
		wg.Add(1)
		go m.startGroup(ctx, group, &wg)
	}
	wg.Wait()
	return nil
}

// startGroup launches the group's tasks in insertion order, sleeping the
// stagger offset between launches (skipped after the last).
func (m *TaskMonitor) startGroup(ctx context.Context, group entityGroup, wg *sync.WaitGroup) {
	defer wg.Done()
	logger := m.Logger.With().Str("component", "scheduler").Logger()
	logger.Info().
		Int("tasks", len(group.entities)).
		Dur("offset", group.offset).
		Msg("starting monitor tasks")

	var tasks sync.WaitGroup
	defer tasks.Wait()
	for i, entity := range group.entities {
		tasks.Add(1)
		go m.runFor(ctx, entity, &tasks)
		if i == len(group.entities)-1 {
			continue
		}
		if !sleepCtx(ctx, group.offset) {
			return
		}
	}
}

// runFor is the task body of one entity: poll, then sleep the live
// interval, until the context ends or the poll reports a fatal error.
func (m *TaskMonitor) runFor(ctx context.Context, entity plugin.Entity, wg *sync.WaitGroup) {
	defer wg.Done()
	name := entity.EntityName()
	state := m.states[name]
	for {
		if err := m.runOnce(ctx, entity, state); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.Logger.Error().Err(err).Str("entity", name).
				Msg("task failed, terminating")
			return
		}
		metrics.UpdateInterval.WithLabelValues(m.Name(), name).Set(state.Interval.Seconds())
		if !sleepCtx(ctx, state.Interval) {
			return
		}
	}
}

// sleepCtx sleeps for d unless the context ends first. Reports whether the
// full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
