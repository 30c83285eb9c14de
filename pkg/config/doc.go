/*
Package config loads the declarative configuration into validated actors and
chains.

Validation runs in two passes. The structural pass parses the YAML document
into a generic shape (actor sections with config/defaults/entities, chains as
ordered lists of single-entry stage mappings) and resolves every actor name
against the plugin registry. The specialization pass flattens each actor
section (entity defaults merged under each entity, entity value winning; the
actor name injected into its config block) and strictly decodes the result
into the plugin's typed config and entity prototypes, running their
validators.

Failures do not stop the loader: every malformed field across the document is
collected into one *Error whose message lists each location, offending value
and explanation, so a single run surfaces everything there is to fix.
*/
package config
