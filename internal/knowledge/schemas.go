package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

const terminologySchema = `{
  "type": "object",
  "required": ["terms"],
  "properties": {
    "terms": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["term"],
        "properties": {
          "term": {"type": "string", "minLength": 1},
          "definition": {"type": "string"},
          "aliases": {"type": "array", "items": {"type": "string"}},
          "forbidden": {"type": "array", "items": {"type": "string"}}
        }
      }
    }
  }
}`

const constraintsSchema = `{
  "type": "object",
  "required": ["rules"],
  "properties": {
    "rules": {
      "type": "array",
      "items": {
        "anyOf": [
          {"type": "string", "minLength": 1},
          {
            "type": "object",
            "required": ["text"],
            "properties": {
              "id": {"type": "string"},
              "text": {"type": "string", "minLength": 1},
              "severity": {"enum": ["must", "should", "may"]}
            }
          }
        ]
      }
    }
  }
}`

var errInvalidJSON = errors.New("invalid JSON")

var compiledSchemas = sync.OnceValues(func() (map[string]*jsonschema.Schema, error) {
	out := make(map[string]*jsonschema.Schema, 2)
	for name, src := range map[string]string{
		"terminology.json": terminologySchema,
		"constraints.json": constraintsSchema,
	} {
		compiler := jsonschema.NewCompiler()
		schema, err := compiler.Compile([]byte(src))
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", name, err)
		}
		out[name] = schema
	}
	return out, nil
})

// validateRuleJSON checks a JSON rule file against its schema.
func validateRuleJSON(name string, data []byte) error {
	if !json.Valid(data) {
		return errInvalidJSON
	}
	schemas, err := compiledSchemas()
	if err != nil {
		return err
	}
	schema, ok := schemas[name]
	if !ok {
		return nil
	}
	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("schema validation failed: %v", result.Errors)
}
