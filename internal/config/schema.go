package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	sjs "github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const schemaURL = "https://noescape.gg/schemas/noescape.config.schema.json"

// Schema reflects Config into a JSON Schema document.
func Schema() *jsonschema.Schema {
	r := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	s := r.Reflect(new(Config))
	s.ID = schemaURL
	s.Title = "NoEscape configuration"
	s.Description = "noescape.yaml; every key is optional and falls back to its default."
	return s
}

func SchemaJSON() ([]byte, error) {
	return json.MarshalIndent(Schema(), "", "  ")
}

// Check validates a raw yaml document against Schema and returns one error per violation.
// Unlike Load it repairs nothing.
func Check(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	if doc == nil {
		return nil
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("convert yaml: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var inst any
	if err := dec.Decode(&inst); err != nil {
		return fmt.Errorf("convert yaml: %w", err)
	}

	sb, err := SchemaJSON()
	if err != nil {
		return err
	}
	c := sjs.NewCompiler()
	if err := c.AddResource(schemaURL, bytes.NewReader(sb)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	sch, err := c.Compile(schemaURL)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	return sch.Validate(inst)
}
