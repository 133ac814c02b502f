package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("config.json", configSchema)
	})
	return schema, schemaErr
}

// Validate checks raw against the structural JSON Schema, then applies the
// cross-field rules the schema itself cannot express.
func Validate(raw []byte, cfg Config) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("config: compile schema: %w", err)
	}

	var payload any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return fmt.Errorf("config: decode for validation: %w", err)
	}
	if err := s.Validate(payload); err != nil {
		return fmt.Errorf("config: invalid configuration: %w", err)
	}

	if cfg.Auth.Mode == AuthModeVerify && cfg.Auth.SigningKey == "" {
		return fmt.Errorf("config: auth.signingKey is required when auth.mode is %q", AuthModeVerify)
	}
	return nil
}

const configSchema = `{
  "type": "object",
  "properties": {
    "auth": {
      "type": "object",
      "properties": {
        "mode": { "enum": ["verify", "trust"] },
        "signingKey": { "type": ["string", "null"] },
        "claimsPath": { "type": "string", "minLength": 1 }
      },
      "additionalProperties": false
    },
    "defaultModel": { "type": "string", "minLength": 1 },
    "defaultHitlLevel": { "enum": ["autonomous", "cautious", "standard", "paranoid"] },
    "allowUserModelSelect": { "type": "boolean" },
    "allowUserHitlConfig": { "type": "boolean" },
    "adminKey": { "type": ["string", "null"] },
    "conversation": {
      "type": "object",
      "properties": {
        "store": { "enum": ["sqlite", "redis", "postgres"] },
        "window": { "type": "integer", "minimum": 1 }
      },
      "additionalProperties": false
    },
    "sidecar": {
      "type": "object",
      "properties": {
        "enabled": { "type": "boolean" },
        "port": { "type": "integer", "minimum": 1, "maximum": 65535 }
      },
      "additionalProperties": false
    },
    "drift": {
      "type": "object",
      "properties": {
        "threshold": { "type": "number", "minimum": 0, "maximum": 1 },
        "windowSize": { "type": "integer", "minimum": 1 }
      },
      "additionalProperties": false
    },
    "api": {
      "type": "object",
      "properties": {
        "baseUrl": { "type": "string", "minLength": 1 }
      },
      "additionalProperties": false
    }
  },
  "additionalProperties": false
}`
