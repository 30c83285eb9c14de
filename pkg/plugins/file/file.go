// Package file implements the local filesystem plugins: the from_file
// monitor producing text records from a watched file, and the to_file
// action writing record text to disk.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/feedwatch/feedwatch/pkg/actor"
	"github.com/feedwatch/feedwatch/pkg/monitor"
	"github.com/feedwatch/feedwatch/pkg/plugin"
	"github.com/feedwatch/feedwatch/pkg/record"
)

// MonitorEntity is one watched file.
type MonitorEntity struct {
	monitor.TaskEntity `yaml:",inline"`

	// Path of the monitored file
	Path string `yaml:"path"`

	// SplitLines makes every line a separate record instead of one
	// record with the whole file content
	SplitLines bool `yaml:"split_lines"`
}

func (e *MonitorEntity) Validate() error {
	if err := e.TaskEntity.Validate(); err != nil {
		return err
	}
	if e.Path == "" {
		return fmt.Errorf("entity %q: path is required", e.Name)
	}
	return nil
}

// Monitor checks the file's modification time on every cycle and reads it
// when it changed. Records are not deduplicated: any change re-emits the
// whole content, as one record or, with split_lines, one record per line.
type Monitor struct {
	*monitor.TaskMonitor

	mu     sync.Mutex
	mtimes map[string]time.Time
}

func (m *Monitor) poll(_ context.Context, entity plugin.Entity, state *monitor.EntityState) error {
	e := entity.(*MonitorEntity)

	info, err := os.Stat(e.Path)
	if err != nil {
		m.mu.Lock()
		delete(m.mtimes, e.Name)
		m.mu.Unlock()
		return nil
	}
	m.mu.Lock()
	previous, seen := m.mtimes[e.Name]
	m.mtimes[e.Name] = info.ModTime()
	m.mu.Unlock()
	if seen && info.ModTime().Equal(previous) {
		return nil
	}

	content, err := os.ReadFile(e.Path)
	if err != nil {
		m.Logger.Warn().Err(err).Str("entity", e.Name).Str("path", e.Path).
			Msg("error when processing file")
		// reads of a file in flux settle down with a gentler backoff
		// than network failures
		next := time.Duration(float64(state.Interval) * 1.2)
		if next > monitor.MaxBackoffInterval {
			next = monitor.MaxBackoffInterval
		}
		state.Interval = next
		return nil
	}
	state.Restore()

	lines := []string{strings.TrimSpace(string(content))}
	if e.SplitLines {
		lines = strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	}
	for _, line := range lines {
		m.EmitRecord(entity, &record.TextRecord{Text: strings.TrimSpace(line)})
	}
	return nil
}

// OutputFormat selects how a record is rendered into the output file.
type OutputFormat string

const (
	FormatText OutputFormat = "str"
	FormatJSON OutputFormat = "json"
)

// ActionEntity is one output file target.
type ActionEntity struct {
	plugin.BaseEntity `yaml:",inline"`

	// Path is the directory the output file is created in
	Path string `yaml:"path"`

	// Filename names the output file; {field} placeholders are filled
	// from the record
	Filename string `yaml:"filename"`

	// Format selects plain text or canonical JSON output
	Format OutputFormat `yaml:"output_format"`

	// Overwrite allows writing when the file already exists
	Overwrite *bool `yaml:"overwrite"`

	// Append adds records to the end of the file instead of replacing it
	Append *bool `yaml:"append"`

	// Prefix and Postfix wrap every record written
	Prefix  string  `yaml:"prefix"`
	Postfix *string `yaml:"postfix"`
}

func (e *ActionEntity) Validate() error {
	if err := e.BaseEntity.Validate(); err != nil {
		return err
	}
	if e.Filename == "" {
		return fmt.Errorf("entity %q: filename is required", e.Name)
	}
	if e.Path == "" {
		e.Path = "."
	}
	switch e.Format {
	case "":
		e.Format = FormatText
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("entity %q: output_format must be %q or %q, got %q", e.Name, FormatText, FormatJSON, e.Format)
	}
	return nil
}

func (e *ActionEntity) overwrite() bool { return e.Overwrite == nil || *e.Overwrite }
func (e *ActionEntity) append() bool    { return e.Append == nil || *e.Append }

func (e *ActionEntity) postfix() string {
	if e.Postfix == nil {
		return "\n"
	}
	return *e.Postfix
}

// Action writes the text representation of each record to a file. The
// output path can be templated from record fields.
type Action struct {
	*actor.Base

	mu sync.Mutex
}

// Handle implements the actor handler.
func (a *Action) Handle(entity plugin.Entity, rec record.Record) error {
	e := entity.(*ActionEntity)
	filename := record.Format(e.Filename, rec.Fields(), "")
	path := filepath.Join(e.Path, filename)

	if !e.overwrite() {
		if _, err := os.Stat(path); err == nil {
			a.Logger.Debug().Str("entity", e.Name).Str("path", path).
				Msg("file already exists, not overwriting")
			return nil
		}
	}

	body := rec.Display()
	if e.Format == FormatJSON {
		body = record.CanonicalJSON(rec.Fields())
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if e.append() {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	fp, err := os.OpenFile(path, flags, 0644)
	if err == nil {
		_, err = fp.WriteString(e.Prefix + body + e.postfix())
		if closeErr := fp.Close(); err == nil {
			err = closeErr
		}
	}
	if err != nil {
		// the write failure itself travels down the chain as an event
		a.Emit(entity, &record.Event{
			EventType: record.EventError,
			Text:      fmt.Sprintf("error writing %s: %v", path, err),
		})
		return fmt.Errorf("failed to write %q: %w", path, err)
	}
	return nil
}

func init() {
	plugin.Register("from_file", plugin.Factory{
		NewConfig: func() plugin.Config { return &plugin.BaseConfig{} },
		NewEntity: func() plugin.Entity { return &MonitorEntity{} },
		NewActor: func(cfg plugin.Config, entities []plugin.Entity, deps plugin.Deps) (plugin.Actor, error) {
			m := &Monitor{mtimes: make(map[string]time.Time)}
			tm, err := monitor.NewTaskMonitor(cfg.ActorName(), deps.Bus, entities, m.poll)
			if err != nil {
				return nil, err
			}
			m.TaskMonitor = tm
			return m, nil
		},
	})
	plugin.Register("to_file", plugin.Factory{
		NewConfig: func() plugin.Config { return &plugin.BaseConfig{} },
		NewEntity: func() plugin.Entity { return &ActionEntity{} },
		NewActor: func(cfg plugin.Config, entities []plugin.Entity, deps plugin.Deps) (plugin.Actor, error) {
			a := &Action{}
			base, err := actor.NewBase(cfg.ActorName(), deps.Bus, entities, a, nil)
			if err != nil {
				return nil, err
			}
			a.Base = base
			return a, nil
		},
	})
}
