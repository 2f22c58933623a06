package config

import (
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// documentSchema describes the shape of a configuration file. Every property is
// optional because files are layered over Default().
const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "$defs": {
    "duration": {"type": ["string", "integer"]}
  },
  "properties": {
    "world": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "width": {"type": "integer", "minimum": 1},
        "depth": {"type": "integer", "minimum": 1}
      }
    },
    "noise": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "seed": {"type": "integer"},
        "randomSeed": {"type": "boolean"},
        "scale": {"type": "number"},
        "mode": {"enum": ["table", "hash"]}
      }
    },
    "terrain": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "step": {"type": "number", "exclusiveMinimum": 0},
        "amplitude": {"type": "number"},
        "floorDepth": {"type": "integer"},
        "octaves": {"type": "integer", "minimum": 0},
        "smoothing": {"type": "string", "enum": ["value", "simplex"]},
        "persistence": {"type": "number"},
        "lacunarity": {"type": "number"},
        "workers": {"type": "integer", "minimum": 0}
      }
    },
    "picker": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "maxDistance": {"type": "number", "exclusiveMinimum": 0}
      }
    },
    "viewer": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "listen": {"type": "string"},
        "readTimeout": {"$ref": "#/$defs/duration"},
        "writeTimeout": {"$ref": "#/$defs/duration"},
        "maxQueue": {"type": "integer", "minimum": 1},
        "compress": {"type": "boolean"}
      }
    },
    "export": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "previewPath": {"type": "string"},
        "glbPath": {"type": "string"}
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func configSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = jsonschema.CompileString("voxelterrain-config.schema.json", documentSchema)
	})
	return compiledSchema, schemaErr
}

// validateDocument checks a decoded JSON or YAML document before it is applied
// to a Config.
func validateDocument(doc any) error {
	schema, err := configSchema()
	if err != nil {
		return err
	}
	return schema.Validate(doc)
}
