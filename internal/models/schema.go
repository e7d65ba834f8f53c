package models

import (
	"bytes"
	"embed"
	"fmt"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBase = "mem://fieldsync/"

var (
	schemaOnce sync.Once
	schemaErr  error
	compiled   map[string]*jsonschema.Schema
)

func loadSchemas() {
	c := jsonschema.NewCompiler()
	for _, name := range []string{"point", "visit", "location_log"} {
		raw, err := schemaFS.ReadFile("schemas/" + name + ".json")
		if err != nil {
			schemaErr = fmt.Errorf("read schema %s: %w", name, err)
			return
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			schemaErr = fmt.Errorf("parse schema %s: %w", name, err)
			return
		}
		if err := c.AddResource(schemaBase+name+".json", doc); err != nil {
			schemaErr = fmt.Errorf("add schema %s: %w", name, err)
			return
		}
	}

	compiled = make(map[string]*jsonschema.Schema)
	for _, name := range []string{"visit", "location_log"} {
		sch, err := c.Compile(schemaBase + name + ".json")
		if err != nil {
			schemaErr = fmt.Errorf("compile schema %s: %w", name, err)
			return
		}
		compiled[name] = sch
	}
}

// validateSchema checks raw JSON against a named embedded schema.
func validateSchema(name string, data []byte) error {
	schemaOnce.Do(loadSchemas)
	if schemaErr != nil {
		return schemaErr
	}
	sch, ok := compiled[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return &SchemaError{Schema: name, Err: err}
	}
	return nil
}

// SchemaError reports a payload that does not match its schema.
type SchemaError struct {
	Schema string
	Err    error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s does not match schema: %v", e.Schema, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }
