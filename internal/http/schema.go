package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const recordSchema = `{
  "type": "object",
  "required": ["id", "amount", "date", "createdAt", "updatedAt", "deviceId"],
  "properties": {
    "id":        {"type": "string", "minLength": 1, "maxLength": 64},
    "amount":    {"type": "integer", "exclusiveMinimum": 0},
    "category":  {"type": "string", "maxLength": 100},
    "memo":      {"type": "string", "maxLength": 500},
    "date":      {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
    "createdAt": {"type": "string", "minLength": 1},
    "updatedAt": {"type": "string", "minLength": 1},
    "deviceId":  {"type": "string", "minLength": 1}
  }
}`

const patchSchema = `{
  "type": "object",
  "required": ["updatedAt", "deviceId"],
  "properties": {
    "amount":    {"type": "integer", "exclusiveMinimum": 0},
    "category":  {"type": "string", "maxLength": 100},
    "memo":      {"type": "string", "maxLength": 500},
    "date":      {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
    "updatedAt": {"type": "string", "minLength": 1},
    "deviceId":  {"type": "string", "minLength": 1}
  }
}`

const budgetSchema = `{
  "type": "object",
  "required": ["amount"],
  "properties": {
    "month":  {"type": "string"},
    "amount": {"type": "integer", "minimum": 0}
  }
}`

var errInvalidBody = errors.New("invalid request body")

// validators holds the compiled request schemas.
type validators struct {
	record *jsonschema.Schema
	patch  *jsonschema.Schema
	budget *jsonschema.Schema
}

func compileSchemas() (*validators, error) {
	var v validators
	for _, s := range []struct {
		name string
		src  string
		dst  **jsonschema.Schema
	}{
		{"record.json", recordSchema, &v.record},
		{"patch.json", patchSchema, &v.patch},
		{"budget.json", budgetSchema, &v.budget},
	} {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(s.name, bytes.NewReader([]byte(s.src))); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", s.name, err)
		}
		schema, err := compiler.Compile(s.name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", s.name, err)
		}
		*s.dst = schema
	}
	return &v, nil
}

// decodeValid checks data against schema and then decodes it into out.
func decodeValid(schema *jsonschema.Schema, data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}
