// Package settings loads the population tier table from YAML and checks it
// against the bundled JSON schema before handing it to the calculator.
package settings

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/talgya/ascension/internal/ascension"
)

//go:embed default.yaml
var defaultYAML []byte

//go:embed schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("population.schema.json", schemaJSON)
	})
	return schema, schemaErr
}

// Default returns the bundled population settings.
func Default() (ascension.Settings, error) {
	return Parse(defaultYAML)
}

// Load reads settings from path, or the bundled defaults when path is empty.
func Load(path string) (ascension.Settings, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return ascension.Settings{}, err
	}
	s, err := Parse(raw)
	if err != nil {
		return ascension.Settings{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes YAML settings, rejecting unknown fields, schema violations
// and entries the calculator cannot use.
func Parse(raw []byte) (ascension.Settings, error) {
	var s ascension.Settings
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return ascension.Settings{}, fmt.Errorf("population settings: %w", err)
	}

	if err := validateSchema(s); err != nil {
		return ascension.Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return ascension.Settings{}, err
	}
	return s, nil
}

// validateSchema round-trips the decoded settings through JSON so the schema
// sees plain JSON values (bonus level keys become strings).
func validateSchema(s ascension.Settings) error {
	sch, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("population settings: %w", err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("population settings: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("population settings: %w", err)
	}
	return nil
}
