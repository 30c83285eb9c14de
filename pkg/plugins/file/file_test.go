package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedwatch/feedwatch/pkg/actor"
	"github.com/feedwatch/feedwatch/pkg/bus"
	"github.com/feedwatch/feedwatch/pkg/monitor"
	"github.com/feedwatch/feedwatch/pkg/plugin"
	"github.com/feedwatch/feedwatch/pkg/record"
)

func newAction(t *testing.T, b *bus.Bus, entity *ActionEntity) *Action {
	t.Helper()
	a := &Action{}
	base, err := actor.NewBase("sink", b, []plugin.Entity{entity}, a, nil)
	require.NoError(t, err)
	a.Base = base
	return a
}

func TestActionAppendsRecords(t *testing.T) {
	dir := t.TempDir()
	entity := &ActionEntity{
		BaseEntity: plugin.BaseEntity{Name: "out"},
		Path:       dir,
		Filename:   "out.txt",
	}
	require.NoError(t, entity.Validate())

	a := newAction(t, bus.New(), entity)
	require.NoError(t, a.Handle(entity, &record.TextRecord{Text: "first"}))
	require.NoError(t, a.Handle(entity, &record.TextRecord{Text: "second"}))

	content, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(content))
}

func TestActionPrefixPostfix(t *testing.T) {
	dir := t.TempDir()
	postfix := ";"
	entity := &ActionEntity{
		BaseEntity: plugin.BaseEntity{Name: "out"},
		Path:       dir,
		Filename:   "out.txt",
		Prefix:     "> ",
		Postfix:    &postfix,
	}
	require.NoError(t, entity.Validate())

	a := newAction(t, bus.New(), entity)
	require.NoError(t, a.Handle(entity, &record.TextRecord{Text: "x"}))

	content, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "> x;", string(content))
}

func TestActionJSONFormat(t *testing.T) {
	dir := t.TempDir()
	entity := &ActionEntity{
		BaseEntity: plugin.BaseEntity{Name: "out"},
		Path:       dir,
		Filename:   "out.json",
		Format:     FormatJSON,
	}
	require.NoError(t, entity.Validate())

	a := newAction(t, bus.New(), entity)
	require.NoError(t, a.Handle(entity, &record.Event{EventType: record.EventGeneric, Text: "hi"}))

	content, err := os.ReadFile(filepath.Join(dir, "out.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"event_type":"generic","text":"hi"}`+"\n", string(content))
}

func TestActionTemplatedFilename(t *testing.T) {
	dir := t.TempDir()
	entity := &ActionEntity{
		BaseEntity: plugin.BaseEntity{Name: "out"},
		Path:       dir,
		Filename:   "{event_type}.log",
	}
	require.NoError(t, entity.Validate())

	a := newAction(t, bus.New(), entity)
	require.NoError(t, a.Handle(entity, &record.Event{EventType: record.EventError, Text: "boom"}))

	_, err := os.Stat(filepath.Join(dir, "error.log"))
	assert.NoError(t, err)
}

func TestActionNoOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0644))

	overwrite := false
	entity := &ActionEntity{
		BaseEntity: plugin.BaseEntity{Name: "out"},
		Path:       dir,
		Filename:   "out.txt",
		Overwrite:  &overwrite,
	}
	require.NoError(t, entity.Validate())

	a := newAction(t, bus.New(), entity)
	require.NoError(t, a.Handle(entity, &record.TextRecord{Text: "new"}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original", string(content))
}

func TestActionWriteFailureEmitsErrorEvent(t *testing.T) {
	b := bus.New()
	entity := &ActionEntity{
		BaseEntity: plugin.BaseEntity{Name: "out"},
		Path:       "/nonexistent/dir",
		Filename:   "out.txt",
	}
	require.NoError(t, entity.Validate())
	a := newAction(t, b, entity)

	var events []record.Record
	b.Subscribe(bus.OutgoingTopicFor("sink", "out"), func(topic string, rec record.Record) {
		events = append(events, rec)
	})

	err := a.Handle(entity, &record.TextRecord{Text: "x"})
	require.Error(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, record.EventError, events[0].(*record.Event).EventType)
}

func TestActionEntityValidation(t *testing.T) {
	entity := &ActionEntity{BaseEntity: plugin.BaseEntity{Name: "out"}}
	assert.Error(t, entity.Validate(), "filename is required")

	entity.Filename = "x.txt"
	entity.Format = "xml"
	assert.Error(t, entity.Validate(), "unknown output format rejected")

	entity.Format = FormatJSON
	assert.NoError(t, entity.Validate())
	assert.Equal(t, ".", entity.Path, "path defaults to the current directory")
}

func TestMonitorEmitsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watched.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello\n"), 0644))

	b := bus.New()
	entity := &MonitorEntity{
		TaskEntity: monitor.TaskEntity{
			BaseEntity:            plugin.BaseEntity{Name: "w"},
			UpdateIntervalSeconds: 60,
		},
		Path: path,
	}
	m := &Monitor{mtimes: map[string]time.Time{}}
	tm, err := monitor.NewTaskMonitor("files", b, []plugin.Entity{entity}, m.poll)
	require.NoError(t, err)
	m.TaskMonitor = tm

	var got []string
	b.Subscribe(bus.OutgoingTopicFor("files", "w"), func(topic string, rec record.Record) {
		got = append(got, rec.Display())
	})

	state := m.State("w")
	require.NoError(t, m.poll(context.Background(), entity, state))
	assert.Equal(t, []string{"hello"}, got)

	// unchanged file produces nothing
	require.NoError(t, m.poll(context.Background(), entity, state))
	assert.Len(t, got, 1)

	// changed content is read again
	newTime := time.Now().Add(time.Hour)
	require.NoError(t, os.WriteFile(path, []byte("changed\n"), 0644))
	require.NoError(t, os.Chtimes(path, newTime, newTime))
	require.NoError(t, m.poll(context.Background(), entity, state))
	assert.Equal(t, []string{"hello", "changed"}, got)
}

func TestMonitorSplitLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watched.txt")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\n"), 0644))

	b := bus.New()
	entity := &MonitorEntity{
		TaskEntity: monitor.TaskEntity{
			BaseEntity:            plugin.BaseEntity{Name: "w"},
			UpdateIntervalSeconds: 60,
		},
		Path:       path,
		SplitLines: true,
	}
	m := &Monitor{mtimes: map[string]time.Time{}}
	tm, err := monitor.NewTaskMonitor("files", b, []plugin.Entity{entity}, m.poll)
	require.NoError(t, err)
	m.TaskMonitor = tm

	var got []string
	b.Subscribe(bus.OutgoingTopicFor("files", "w"), func(topic string, rec record.Record) {
		got = append(got, rec.Display())
	})

	require.NoError(t, m.poll(context.Background(), entity, m.State("w")))
	assert.Equal(t, []string{"one", "two"}, got)
}

func TestMonitorMissingFile(t *testing.T) {
	b := bus.New()
	entity := &MonitorEntity{
		TaskEntity: monitor.TaskEntity{
			BaseEntity:            plugin.BaseEntity{Name: "w"},
			UpdateIntervalSeconds: 60,
		},
		Path: filepath.Join(t.TempDir(), "missing.txt"),
	}
	m := &Monitor{mtimes: map[string]time.Time{}}
	tm, err := monitor.NewTaskMonitor("files", b, []plugin.Entity{entity}, m.poll)
	require.NoError(t, err)
	m.TaskMonitor = tm

	assert.NoError(t, m.poll(context.Background(), entity, m.State("w")), "a missing file is not an error")
}
