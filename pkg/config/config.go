package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/feedwatch/feedwatch/pkg/chain"
	"github.com/feedwatch/feedwatch/pkg/plugin"
)

// Document is the structural shape of the configuration file, before any
// plugin-specific validation.
type Document struct {
	Actors map[string]ActorSection  `yaml:"Actors"`
	Chains map[string][]chain.Stage `yaml:"Chains"`
}

// ActorSection is one actor's generic configuration block.
type ActorSection struct {
	Config   map[string]any   `yaml:"config"`
	Defaults map[string]any   `yaml:"defaults"`
	Entities []map[string]any `yaml:"entities"`
}

// ParsedActor is the outcome of specializing one actor section against its
// plugin's schemas: validated typed config and entities plus the factory to
// construct the actor with.
type ParsedActor struct {
	Name     string
	Factory  plugin.Factory
	Config   plugin.Config
	Entities []plugin.Entity
}

// Result is a fully validated configuration.
type Result struct {
	Actors map[string]*ParsedActor
	Chains map[string][]chain.Stage

	// ActorOrder preserves document order for deterministic startup
	ActorOrder []string
}

// LoadFile reads and parses a configuration file.
func LoadFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Load(data)
}

// Load runs the two validation passes over a configuration document:
// a generic structural parse, then schema specialization per actor based on
// the plugin registry. Validation failures accumulate across the whole
// document and come back as a single *Error.
func Load(data []byte) (*Result, error) {
	doc, err := parseStructure(data)
	if err != nil {
		return nil, err
	}

	verr := &Error{}
	result := &Result{
		Actors: make(map[string]*ParsedActor, len(doc.Actors)),
		Chains: doc.Chains,
	}

	order, oerr := actorOrder(data)
	if oerr != nil {
		order = nil
	}
	for name := range doc.Actors {
		if !contains(order, name) {
			order = append(order, name)
		}
	}
	result.ActorOrder = order

	for name, section := range doc.Actors {
		parsed := specializeActor(name, section, verr)
		if parsed != nil {
			result.Actors[name] = parsed
		}
	}

	validateChains(doc, result, verr)

	if !verr.empty() {
		return nil, verr
	}
	return result, nil
}

func parseStructure(data []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if len(doc.Actors) == 0 {
		return nil, fmt.Errorf("config file has no Actors section")
	}
	return &doc, nil
}

// specializeActor flattens an actor section and validates it against the
// plugin's typed config and entity prototypes. Returns nil when anything
// failed; failures are recorded in verr.
func specializeActor(name string, section ActorSection, verr *Error) *ParsedActor {
	path := "Actors: " + name

	factory, err := plugin.Lookup(name)
	if err != nil {
		verr.add(path, name, err.Error())
		return nil
	}

	// actor name is injected into its config block before decoding
	configMap := make(map[string]any, len(section.Config)+1)
	for k, v := range section.Config {
		configMap[k] = v
	}
	configMap["name"] = name

	cfg := factory.NewConfig()
	ok := true
	if err := decodeStrict(configMap, cfg); err != nil {
		verr.add(path+": config", section.Config, err.Error())
		ok = false
	} else if err := cfg.Validate(); err != nil {
		verr.add(path+": config", section.Config, err.Error())
		ok = false
	}

	if len(section.Entities) == 0 {
		verr.add(path, nil, "actor has no entities")
		return nil
	}

	seen := make(map[string]bool, len(section.Entities))
	entities := make([]plugin.Entity, 0, len(section.Entities))
	for i, entityMap := range section.Entities {
		entityPath := fmt.Sprintf("%s: entities: %d", path, i)
		if rawName, found := entityMap["name"]; found {
			entityPath = fmt.Sprintf("%s: entities: %v", path, rawName)
		}

		// defaults merge under the entity values, entity value wins
		flattened := make(map[string]any, len(section.Defaults)+len(entityMap))
		for k, v := range section.Defaults {
			flattened[k] = v
		}
		for k, v := range entityMap {
			flattened[k] = v
		}

		entity := factory.NewEntity()
		if err := decodeStrict(flattened, entity); err != nil {
			verr.add(entityPath, entityMap, err.Error())
			ok = false
			continue
		}
		if err := entity.Validate(); err != nil {
			verr.add(entityPath, entityMap, err.Error())
			ok = false
			continue
		}
		if seen[entity.EntityName()] {
			verr.addf(entityPath, entity.EntityName(), "duplicate entity name %q", entity.EntityName())
			ok = false
			continue
		}
		seen[entity.EntityName()] = true
		entities = append(entities, entity)
	}

	if !ok {
		return nil
	}
	return &ParsedActor{Name: name, Factory: factory, Config: cfg, Entities: entities}
}

func validateChains(doc *Document, result *Result, verr *Error) {
	for chainName, stages := range doc.Chains {
		path := "Chains: " + chainName
		for _, stage := range stages {
			section, found := doc.Actors[stage.Actor]
			if !found {
				verr.addf(path, stage.Actor, "chain references unknown actor %q", stage.Actor)
				continue
			}
			for _, entityName := range stage.Entities {
				if !actorHasEntity(section, entityName) {
					verr.addf(path, entityName, "actor %q has no entity named %q", stage.Actor, entityName)
				}
			}
		}
	}
}

func actorHasEntity(section ActorSection, name string) bool {
	for _, entity := range section.Entities {
		if entityName, ok := entity["name"].(string); ok && entityName == name {
			return true
		}
	}
	return false
}

// decodeStrict round-trips a generic map through YAML into a typed
// prototype, rejecting fields the prototype does not declare.
func decodeStrict(data map[string]any, out any) error {
	raw, err := yaml.Marshal(data)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// actorOrder extracts the order actor names appear in the document, which
// the generic map decode discards.
func actorOrder(data []byte) ([]string, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	mapping := root.Content[0]
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value != "Actors" {
			continue
		}
		actors := mapping.Content[i+1]
		var order []string
		for j := 0; j < len(actors.Content); j += 2 {
			order = append(order, actors.Content[j].Value)
		}
		return order, nil
	}
	return nil, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
