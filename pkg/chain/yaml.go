package chain

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML decodes the config form of a stage: a single-entry mapping
// of actor name to entity list. The list-of-single-entry-mappings shape is
// what preserves stage order in the document.
func (s *Stage) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return fmt.Errorf("chain stage must be a single-entry mapping of one actor name to a list of entity names")
	}
	if err := node.Content[0].Decode(&s.Actor); err != nil {
		return err
	}
	if err := node.Content[1].Decode(&s.Entities); err != nil {
		return fmt.Errorf("chain stage %q: %w", s.Actor, err)
	}
	return nil
}
