package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	schemaOnce sync.Once
	schemaErr  error
	schemas    map[string]*jsonschema.Schema
)

// Schema files keyed by the inbound message type they validate.
var schemaFiles = map[string]string{
	TypeHello: "hello.schema.json",
	TypeState: "state.schema.json",
	TypeEvent: "event.schema.json",
	TypeGate:  "gate.schema.json",
	TypeQuery: "query.schema.json",
	TypeStop:  "stop.schema.json",
}

func loadSchemas() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	for _, name := range schemaFiles {
		b, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			schemaErr = err
			return
		}
		if err := c.AddResource("mem://schemas/"+name, bytes.NewReader(b)); err != nil {
			schemaErr = fmt.Errorf("add %s: %w", name, err)
			return
		}
	}
	out := make(map[string]*jsonschema.Schema, len(schemaFiles))
	for typ, name := range schemaFiles {
		s, err := c.Compile("mem://schemas/" + name)
		if err != nil {
			schemaErr = fmt.Errorf("compile %s: %w", name, err)
			return
		}
		out[typ] = s
	}
	schemas = out
}

// HasSchema reports whether inbound messages of msgType are schema-checked.
func HasSchema(msgType string) bool {
	_, ok := schemaFiles[msgType]
	return ok
}

// Validate checks raw against the schema for msgType. Types without a schema pass.
func Validate(msgType string, raw []byte) error {
	schemaOnce.Do(loadSchemas)
	if schemaErr != nil {
		return schemaErr
	}
	s := schemas[msgType]
	if s == nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%s: %s", strings.ToLower(msgType), err)
	}
	return nil
}
