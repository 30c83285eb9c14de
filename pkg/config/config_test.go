package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedwatch/feedwatch/pkg/plugin"
)

type testConfig struct {
	plugin.BaseConfig `yaml:",inline"`

	Token string `yaml:"token"`
}

type testEntity struct {
	plugin.BaseEntity `yaml:",inline"`

	URL                   string  `yaml:"url"`
	UpdateIntervalSeconds float64 `yaml:"update_interval"`
}

func (e *testEntity) Validate() error {
	if err := e.BaseEntity.Validate(); err != nil {
		return err
	}
	if e.URL == "" {
		return assert.AnError
	}
	return nil
}

type stubActor struct{ name string }

func (a *stubActor) Name() string                  { return a.name }
func (a *stubActor) Run(ctx context.Context) error { return nil }

func init() {
	plugin.Register("testsource", plugin.Factory{
		NewConfig: func() plugin.Config { return &testConfig{} },
		NewEntity: func() plugin.Entity { return &testEntity{} },
		NewActor: func(cfg plugin.Config, entities []plugin.Entity, deps plugin.Deps) (plugin.Actor, error) {
			return &stubActor{name: cfg.ActorName()}, nil
		},
	})
}

const validDoc = `
Actors:
  testsource:
    config:
      token: secret
    defaults:
      update_interval: 120
    entities:
      - name: one
        url: https://example.com/1
      - name: two
        url: https://example.com/2
        update_interval: 30
Chains:
  main:
    - testsource: [one, two]
    - testsource: [one]
`

func TestLoadValidConfig(t *testing.T) {
	result, err := Load([]byte(validDoc))
	require.NoError(t, err)

	actor := result.Actors["testsource"]
	require.NotNil(t, actor)

	cfg := actor.Config.(*testConfig)
	assert.Equal(t, "testsource", cfg.ActorName(), "actor name is injected into its config block")
	assert.Equal(t, "secret", cfg.Token)

	require.Len(t, actor.Entities, 2)
	one := actor.Entities[0].(*testEntity)
	two := actor.Entities[1].(*testEntity)
	assert.Equal(t, 120.0, one.UpdateIntervalSeconds, "defaults are merged into entities")
	assert.Equal(t, 30.0, two.UpdateIntervalSeconds, "entity value wins over defaults")
}

func TestLoadPreservesChainStageOrder(t *testing.T) {
	result, err := Load([]byte(validDoc))
	require.NoError(t, err)

	stages := result.Chains["main"]
	require.Len(t, stages, 2)
	assert.Equal(t, []string{"one", "two"}, stages[0].Entities)
	assert.Equal(t, []string{"one"}, stages[1].Entities)
}

func TestLoadAggregatesAllErrors(t *testing.T) {
	doc := `
Actors:
  testsource:
    config: {}
    entities:
      - name: broken1
      - name: broken2
`
	_, err := Load([]byte(doc))
	require.Error(t, err)

	verr, ok := err.(*Error)
	require.True(t, ok, "expected aggregated config error, got %T", err)
	assert.Len(t, verr.Fields, 2)
	assert.Contains(t, err.Error(), "broken1")
	assert.Contains(t, err.Error(), "broken2")
}

func TestLoadUnknownPlugin(t *testing.T) {
	doc := `
Actors:
  nosuchplugin:
    entities:
      - name: e
`
	_, err := Load([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nosuchplugin")
	assert.Contains(t, err.Error(), "not a registered plugin")
}

func TestLoadRejectsUnknownEntityField(t *testing.T) {
	doc := `
Actors:
  testsource:
    entities:
      - name: e
        url: https://example.com
        bogus_knob: 1
`
	_, err := Load([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus_knob")
}

func TestLoadRejectsDuplicateEntityNames(t *testing.T) {
	doc := `
Actors:
  testsource:
    entities:
      - name: same
        url: https://example.com/1
      - name: same
        url: https://example.com/2
`
	_, err := Load([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate entity name")
}

func TestLoadValidatesChainReferences(t *testing.T) {
	doc := `
Actors:
  testsource:
    entities:
      - name: one
        url: https://example.com
Chains:
  bad:
    - testsource: [one]
    - missingactor: [x]
  alsobad:
    - testsource: [ghost]
    - testsource: [one]
`
	_, err := Load([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missingactor")
	assert.Contains(t, err.Error(), "ghost")
}

func TestLoadRejectsMultiEntryStage(t *testing.T) {
	doc := `
Actors:
  testsource:
    entities:
      - name: one
        url: https://example.com
Chains:
  bad:
    - testsource: [one]
      other: [two]
`
	_, err := Load([]byte(doc))
	require.Error(t, err)
}

func TestLoadEmptyDocument(t *testing.T) {
	_, err := Load([]byte(""))
	require.Error(t, err)
}

func TestLoadActorWithoutEntities(t *testing.T) {
	doc := `
Actors:
  testsource:
    config: {}
    entities: []
`
	_, err := Load([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no entities")
}
