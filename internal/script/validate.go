package script

import (
	"bytes"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/loykin/orchestrator/internal/orcherr"
)

// scriptSchemaJSON is the fixed JSON Schema every raw script document must
// satisfy before a Document is built from it. Kept deliberately loose on
// `params` (each method's params shape is validated by its own handler at
// dispatch time, against the narrower ExecutionFrame it actually has) and
// strict on the structural envelope every script variant shares.
const scriptSchemaJSON = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["run"],
	"properties": {
		"version": {"type": "string"},
		"daemon": {"type": "boolean"},
		"env": {"type": "object", "additionalProperties": {"type": "string"}},
		"run": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["method"],
				"properties": {
					"id": {"type": "string"},
					"method": {"type": "string"},
					"params": {"type": "object"},
					"when": {"type": "string"},
					"on": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["event", "return"],
							"properties": {
								"event": {"type": "string"},
								"return": {"type": "string"}
							}
						}
					}
				}
			}
		}
	}
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("script.schema.json", bytes.NewReader([]byte(scriptSchemaJSON))); err != nil {
		panic("script: invalid embedded schema: " + err.Error())
	}
	schema, err := compiler.Compile("script.schema.json")
	if err != nil {
		panic("script: failed to compile embedded schema: " + err.Error())
	}
	return schema
}

// ValidateSchema checks raw against the fixed script schema. A violation
// is reported as orcherr.KindScriptParse, carrying the validator's message
// as Detail.
func ValidateSchema(raw []byte) error {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return orcherr.Wrap(orcherr.KindScriptParse, "invalid JSON", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return orcherr.Wrap(orcherr.KindScriptParse, "script document failed schema validation", err).WithDetail(err.Error())
	}
	return nil
}
