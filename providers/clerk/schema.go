package clerk

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const envelopeSchemaURL = "https://identity-sync.local/schemas/clerk/envelope.json"

//go:embed schema/envelope.schema.json
var envelopeSchemaJSON []byte

var (
	envelopeSchemaOnce sync.Once
	envelopeSchema     *jsonschema.Schema
	envelopeSchemaErr  error
)

func compiledEnvelopeSchema() (*jsonschema.Schema, error) {
	envelopeSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(envelopeSchemaJSON))
		if err != nil {
			envelopeSchemaErr = fmt.Errorf("providers/clerk: parse envelope schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(envelopeSchemaURL, doc); err != nil {
			envelopeSchemaErr = fmt.Errorf("providers/clerk: add envelope schema: %w", err)
			return
		}
		envelopeSchema, envelopeSchemaErr = compiler.Compile(envelopeSchemaURL)
	})
	return envelopeSchema, envelopeSchemaErr
}

// validateEnvelope checks body against the envelope schema and returns a
// short, single line description of the first violation.
func validateEnvelope(body []byte) error {
	schema, err := compiledEnvelopeSchema()
	if err != nil {
		return err
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		message := err.Error()
		if line, _, ok := strings.Cut(message, "\n"); ok {
			message = line
		}
		return fmt.Errorf("schema violation: %s", message)
	}
	return nil
}
