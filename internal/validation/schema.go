package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Schema names accepted by ValidateJSON.
const (
	SchemaInstall  = "install"
	SchemaAddPack  = "addPack"
	SchemaControl  = "control"
	SchemaCommand  = "command"
	SchemaPlayer   = "player"
	SchemaSettings = "settings"
	SchemaLogin    = "login"
	SchemaFilename = "filename"
	SchemaPackID   = "packId"
)

const installItemSchema = `{
	"type": "object",
	"required": ["id", "name", "downloadUrl", "filename"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"name": {"type": "string", "minLength": 1},
		"downloadUrl": {"type": "string", "minLength": 1},
		"filename": {"type": "string", "minLength": 1},
		"size": {"type": "integer", "minimum": 0}
	}
}`

var schemaSources = map[string]string{
	SchemaInstall: `{
		"type": "object",
		"properties": {
			"items": {"type": "array", "items": ` + installItemSchema + `},
			"mods": {"type": "array", "items": ` + installItemSchema + `},
			"shaders": {"type": "array", "items": ` + installItemSchema + `}
		}
	}`,
	SchemaAddPack: `{
		"type": "object",
		"required": ["id", "name", "downloadUrl", "filename"],
		"properties": {
			"id": {"type": "string", "minLength": 1},
			"name": {"type": "string", "minLength": 1},
			"icon": {"type": ["string", "null"]},
			"version": {"type": "string"},
			"downloadUrl": {"type": "string", "minLength": 1},
			"filename": {"type": "string", "minLength": 1},
			"sha1": {"type": "string"},
			"size": {"type": "integer", "minimum": 0}
		}
	}`,
	SchemaControl: `{
		"type": "object",
		"required": ["action"],
		"properties": {
			"action": {"type": "string", "enum": ["start", "stop", "restart"]}
		}
	}`,
	SchemaCommand: `{
		"type": "object",
		"required": ["command"],
		"properties": {
			"command": {"type": "string", "minLength": 1, "maxLength": 1000}
		}
	}`,
	SchemaPlayer: `{
		"type": "object",
		"required": ["player"],
		"properties": {
			"player": {"type": "string", "pattern": "^[A-Za-z0-9_]{3,16}$"}
		}
	}`,
	SchemaSettings: `{
		"type": "object",
		"required": ["properties"],
		"properties": {
			"properties": {
				"type": "object",
				"additionalProperties": {"type": ["string", "number", "boolean"]}
			}
		}
	}`,
	SchemaFilename: `{
		"type": "object",
		"required": ["filename"],
		"properties": {
			"filename": {"type": "string", "minLength": 1}
		}
	}`,
	SchemaPackID: `{
		"type": "object",
		"required": ["id"],
		"properties": {
			"id": {"type": "string", "minLength": 1}
		}
	}`,
	SchemaLogin: `{
		"type": "object",
		"required": ["username", "password"],
		"properties": {
			"username": {"type": "string", "minLength": 1},
			"password": {"type": "string", "minLength": 1}
		}
	}`,
}

var schemas = mustCompileSchemas(schemaSources)

func mustCompileSchemas(sources map[string]string) map[string]*gojsonschema.Schema {
	compiled := make(map[string]*gojsonschema.Schema, len(sources))
	for name, src := range sources {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			panic(fmt.Sprintf("validation: schema %s: %v", name, err))
		}
		compiled[name] = schema
	}
	return compiled
}

// ValidateJSON checks a request body against one of the named schemas. The
// returned *ValidationError lists every violation.
func ValidateJSON(schemaName string, body []byte) error {
	schema, ok := schemas[schemaName]
	if !ok {
		return fmt.Errorf("validation: unknown schema %q", schemaName)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return NewValidationError("body", "invalid JSON")
	}

	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return NewValidationError("body", strings.Join(problems, "; "))
	}

	return nil
}
