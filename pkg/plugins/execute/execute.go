// Package execute implements the execute action: it runs a configured
// command for each incoming record, with record fields substituted into the
// command line.
package execute

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/feedwatch/feedwatch/pkg/actor"
	"github.com/feedwatch/feedwatch/pkg/plugin"
	"github.com/feedwatch/feedwatch/pkg/record"
)

// Entity configures one command target.
type Entity struct {
	plugin.BaseEntity `yaml:",inline"`

	// Command is the command line to run; split shell-style before
	// placeholder expansion
	Command string `yaml:"command"`

	// WorkingDir is where the subprocess runs; defaults to the current
	// directory
	WorkingDir string `yaml:"working_dir"`

	// Placeholders maps command-line placeholders to record field names
	Placeholders map[string]string `yaml:"placeholders"`

	// StaticPlaceholders maps placeholders to fixed values
	StaticPlaceholders map[string]string `yaml:"static_placeholders"`

	// ForwardFailed re-emits the original record when the subprocess
	// exits nonzero
	ForwardFailed bool `yaml:"forward_failed"`

	// ReportFailed emits Event(error) on nonzero exit; on by default
	ReportFailed *bool `yaml:"report_failed"`

	// ReportFinished emits Event(finished) on zero exit
	ReportFinished bool `yaml:"report_finished"`

	// ReportStarted emits Event(started) before launching
	ReportStarted bool `yaml:"report_started"`

	// OutputDir, when set, receives a log file with the subprocess
	// stdout and stderr
	OutputDir string `yaml:"output_dir"`
}

func (e *Entity) Validate() error {
	if err := e.BaseEntity.Validate(); err != nil {
		return err
	}
	if e.Command == "" {
		return fmt.Errorf("entity %q: command is required", e.Name)
	}
	if e.Placeholders == nil {
		e.Placeholders = map[string]string{"{url}": "url", "{title}": "title", "{text}": "text"}
	}
	return nil
}

func (e *Entity) reportFailed() bool { return e.ReportFailed == nil || *e.ReportFailed }

// Action launches one subprocess per record. The same command for the same
// record content is never started twice concurrently.
type Action struct {
	*actor.Base

	mu      sync.Mutex
	running map[string]bool
	ctx     context.Context
	cancel  context.CancelFunc
	started sync.WaitGroup
}

// Run parks until shutdown, then waits for the subprocess watchers to log
// their goodbye. The subprocesses themselves are not killed: they are left
// to the process group's normal teardown.
func (a *Action) Run(ctx context.Context) error {
	a.mu.Lock()
	a.ctx = ctx
	a.mu.Unlock()
	<-ctx.Done()
	a.started.Wait()
	return nil
}

func (a *Action) runCtx() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ctx != nil {
		return a.ctx
	}
	return context.Background()
}

// Handle implements the actor handler: expand the command line and launch.
func (a *Action) Handle(entity plugin.Entity, rec record.Record) error {
	e := entity.(*Entity)

	args, err := splitCommand(e.Command)
	if err != nil {
		return fmt.Errorf("entity %q: error parsing command %q: %w", e.Name, e.Command, err)
	}
	args = expandArgs(args, e, rec)
	commandLine := shellFor(args)
	taskID := taskIDFor(e, rec, commandLine)

	a.mu.Lock()
	if a.running[taskID] {
		a.mu.Unlock()
		a.Logger.Info().Str("entity", e.Name).Str("command", commandLine).
			Msg("command for record is already running, will not call again")
		return nil
	}
	a.running[taskID] = true
	a.mu.Unlock()

	a.started.Add(1)
	go a.runSubprocess(args, taskID, e, rec)
	return nil
}

func expandArgs(args []string, e *Entity, rec record.Record) []string {
	fields := rec.Fields()
	expanded := make([]string, 0, len(args))
	for _, arg := range args {
		for placeholder, field := range e.Placeholders {
			if value, ok := fields[field]; ok {
				arg = strings.ReplaceAll(arg, placeholder, record.FieldString(value))
			}
		}
		for placeholder, value := range e.StaticPlaceholders {
			arg = strings.ReplaceAll(arg, placeholder, value)
		}
		expanded = append(expanded, arg)
	}
	return expanded
}

func taskIDFor(e *Entity, rec record.Record, commandLine string) string {
	return fmt.Sprintf("%s|%s|%s", e.Name, record.Hash(rec), commandLine)
}

// outputFile names the capture log:
// command_{entity}_{ms}_{sha1(task id)}_stdout.log
func outputFile(e *Entity, taskID string) string {
	if e.OutputDir == "" {
		return ""
	}
	timestamp := time.Now().UnixMilli()
	sum := sha1.Sum([]byte(taskID))
	name := fmt.Sprintf("command_%s_%d_%s_stdout.log", e.Name, timestamp, hex.EncodeToString(sum[:]))
	return filepath.Join(e.OutputDir, name)
}

func (a *Action) runSubprocess(args []string, taskID string, e *Entity, rec record.Record) {
	defer a.started.Done()
	defer func() {
		a.mu.Lock()
		delete(a.running, taskID)
		a.mu.Unlock()
	}()

	runID := uuid.NewString()
	commandLine := shellFor(args)
	logger := a.Logger.With().Str("entity", e.Name).Str("run_id", runID).Logger()
	logger.Info().Str("command", commandLine).Msg("executing command")

	if e.ReportStarted {
		a.Emit(e, &record.Event{EventType: record.EventStarted, Text: fmt.Sprintf("starting command %q", commandLine)})
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = e.WorkingDir

	var logFile *os.File
	if path := outputFile(e, taskID); path != "" {
		fp, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).
				Msg("failed to open output file, command output goes nowhere")
		} else {
			logFile = fp
			cmd.Stdout = fp
			cmd.Stderr = fp
		}
	}
	if logFile != nil {
		defer logFile.Close()
	}

	if err := cmd.Start(); err != nil {
		logger.Error().Err(err).Str("command", commandLine).Msg("failed to start command")
		if e.reportFailed() {
			a.Emit(e, &record.Event{EventType: record.EventError, Text: fmt.Sprintf("failed to start %q: %v", commandLine, err)})
		}
		return
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-a.runCtx().Done():
		// shutting down: the subprocess is inherited by the process
		// group, not killed here
		logger.Info().Int("pid", cmd.Process.Pid).Str("command", commandLine).
			Msg("shutting down while command is still running, leaving it to the process group")
		return
	case err := <-done:
		if err == nil {
			logger.Info().Str("command", commandLine).Msg("command finished")
			if e.ReportFinished {
				a.Emit(e, &record.Event{EventType: record.EventFinished, Text: fmt.Sprintf("command %q finished", commandLine)})
			}
			return
		}
		logger.Warn().Err(err).Str("command", commandLine).Msg("command failed")
		if e.reportFailed() {
			a.Emit(e, &record.Event{EventType: record.EventError, Text: fmt.Sprintf("command %q failed: %v", commandLine, err)})
		}
		if e.ForwardFailed {
			a.Emit(e, rec)
		}
	}
}

func init() {
	plugin.Register("execute", plugin.Factory{
		NewConfig: func() plugin.Config { return &plugin.BaseConfig{} },
		NewEntity: func() plugin.Entity { return &Entity{} },
		NewActor: func(cfg plugin.Config, entities []plugin.Entity, deps plugin.Deps) (plugin.Actor, error) {
			a := &Action{running: make(map[string]bool)}
			base, err := actor.NewBase(cfg.ActorName(), deps.Bus, entities, a, nil)
			if err != nil {
				return nil, err
			}
			a.Base = base
			return a, nil
		},
	})
}
