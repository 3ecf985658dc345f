package fingerprint

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/exported_signature.schema.json
var exportedSignatureSchemaSource []byte

const exportedSignatureSchemaID = "exported_signature.schema.json"

// SchemaValidator checks ExportedSignature documents against the embedded
// JSON Schema describing that shape.
type SchemaValidator struct {
	schema *jsonschema.Schema
}

// NewSchemaValidator compiles the embedded schema once; it never fails for
// the schema bundled with this package, but returns an error rather than
// panicking so tests can assert on a broken schema file directly.
func NewSchemaValidator() (*SchemaValidator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(exportedSignatureSchemaID, bytes.NewReader(exportedSignatureSchemaSource)); err != nil {
		return nil, fmt.Errorf("loading exported-signature schema: %w", err)
	}
	schema, err := compiler.Compile(exportedSignatureSchemaID)
	if err != nil {
		return nil, fmt.Errorf("compiling exported-signature schema: %w", err)
	}
	return &SchemaValidator{schema: schema}, nil
}

// Validate marshals doc to JSON and checks it against the schema, wrapping
// the first violation as a SchemaViolation error.
func (v *SchemaValidator) Validate(doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling document for validation: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("re-decoding document for validation: %w", err)
	}
	if err := v.schema.Validate(decoded); err != nil {
		return &Error{Kind: "SchemaViolation", Msg: err.Error()}
	}
	return nil
}
