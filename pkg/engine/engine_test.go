package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedwatch/feedwatch/pkg/bus"
	"github.com/feedwatch/feedwatch/pkg/config"
	"github.com/feedwatch/feedwatch/pkg/record"

	_ "github.com/feedwatch/feedwatch/pkg/plugins/file"
	_ "github.com/feedwatch/feedwatch/pkg/plugins/filters"
)

func TestEngineWiresFilterChainToFileSink(t *testing.T) {
	dir := t.TempDir()
	doc := fmt.Sprintf(`
Actors:
  filter.match:
    entities:
      - name: wanted
        patterns: ["foo"]
  to_file:
    defaults:
      path: %s
    entities:
      - name: out
        filename: out.txt
Chains:
  main:
    - filter.match: [wanted]
    - to_file: [out]
`, dir)

	result, err := config.Load([]byte(doc))
	require.NoError(t, err)

	b := bus.New()
	e, err := New(result, b)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = e.Run(ctx)
		close(done)
	}()

	// stand in for a monitor feeding the filter
	b.Publish(bus.IncomingTopicFor("filter.match", "wanted"), &record.TextRecord{Text: "foo bar"})
	b.Publish(bus.IncomingTopicFor("filter.match", "wanted"), &record.TextRecord{Text: "baz"})

	content, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "foo bar\n", string(content), "only matching records reach the sink")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop on cancellation")
	}
}

func TestEngineBuildsAllActors(t *testing.T) {
	doc := `
Actors:
  filter.noop:
    entities:
      - name: a
  filter.void:
    entities:
      - name: b
`
	result, err := config.Load([]byte(doc))
	require.NoError(t, err)

	e, err := New(result, bus.New())
	require.NoError(t, err)
	assert.Len(t, e.Actors(), 2)
}

func TestEngineUnconfiguredOutputIsSilent(t *testing.T) {
	doc := `
Actors:
  filter.noop:
    entities:
      - name: a
`
	result, err := config.Load([]byte(doc))
	require.NoError(t, err)

	b := bus.New()
	_, err = New(result, b)
	require.NoError(t, err)

	// with no chain configured, the filter's output goes nowhere
	assert.NotPanics(t, func() {
		b.Publish(bus.IncomingTopicFor("filter.noop", "a"), &record.TextRecord{Text: "x"})
	})
}
