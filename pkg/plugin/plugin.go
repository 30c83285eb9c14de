package plugin

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Config is the shared per-actor parameter block of a plugin. The actor's
// name from the config document is injected before validation.
type Config interface {
	ActorName() string
	SetActorName(name string)
	Validate() error
}

// Entity is a single configured target of an actor.
type Entity interface {
	EntityName() string
	Validate() error
}

// Actor is a named processing unit: monitor, filter or action. Construction
// subscribes it to its entities' incoming topics; Run is the long-running
// driver, a no-op for passive actors.
type Actor interface {
	Name() string
	Run(ctx context.Context) error
}

// Factory is the triple registered per plugin name: prototypes for the two
// config schemas plus the actor constructor.
type Factory struct {
	// NewConfig returns an empty typed config to decode the actor's
	// config section into
	NewConfig func() Config

	// NewEntity returns an empty typed entity to decode each flattened
	// entity dictionary into
	NewEntity func() Entity

	// NewActor builds the actor from validated config and entities
	NewActor func(cfg Config, entities []Entity, deps Deps) (Actor, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a plugin under a unique name. Called from plugin package
// init functions; duplicate names panic at load time.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("plugin %q registered twice", name))
	}
	if f.NewConfig == nil || f.NewEntity == nil || f.NewActor == nil {
		panic(fmt.Sprintf("plugin %q registered with incomplete factory", name))
	}
	registry[name] = f
}

// Lookup returns the factory registered under the name, or an error listing
// the known plugin names.
func Lookup(name string) (Factory, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	if !ok {
		return Factory{}, fmt.Errorf("%q is not a registered plugin, known plugins are: %s",
			name, strings.Join(names(), ", "))
	}
	return f, nil
}

// Names returns all registered plugin names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return names()
}

func names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// BaseConfig carries the fields every actor config shares.
type BaseConfig struct {
	Name string `yaml:"name"`
}

func (c *BaseConfig) ActorName() string        { return c.Name }
func (c *BaseConfig) SetActorName(name string) { c.Name = name }
func (c *BaseConfig) Validate() error          { return nil }

// BaseEntity carries the fields every entity shares.
type BaseEntity struct {
	Name string `yaml:"name"`
}

func (e *BaseEntity) EntityName() string { return e.Name }

func (e *BaseEntity) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("entity name must not be empty")
	}
	return nil
}
