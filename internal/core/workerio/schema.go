package workerio

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// SchemaFor derives a JSON Schema from a Go type, the same
// reflection-driven schema the MCP go-sdk builds for tool input
// validation (quanticsoul4772-unified-thinking registers its tools
// this way).
func SchemaFor[T any]() (*jsonschema.Schema, error) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, fmt.Errorf("derive schema: %w", err)
	}
	return schema, nil
}

// Validate checks a decoded instance against a schema, replacing the
// teacher's zero-tolerance reflection walk (pkg/core/utils/json_validator.go's
// ValidateJSON) with a real JSON-Schema check: every required field
// declared in spec.md §4.5's worker output schemas must be present,
// not merely non-zero.
func Validate(schema *jsonschema.Schema, instance interface{}) error {
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("resolve schema: %w", err)
	}
	if err := resolved.Validate(instance); err != nil {
		return fmt.Errorf("schema violation: %w", err)
	}
	return nil
}

// Decode runs the full ladder: SmartParse into out, then validate out
// against T's derived schema. Callers pass the same type for T and out
// so the derived schema matches the decoded shape.
func Decode[T any](input string, out *T) error {
	_, _, err := SmartParse(input, out)
	if err != nil {
		return err
	}

	schema, err := SchemaFor[T]()
	if err != nil {
		return err
	}
	return Validate(schema, out)
}
