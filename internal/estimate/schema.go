package estimate

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// rootSchemaJSON describes the persisted record loosely enough to accept the
// legacy array-shaped collections, which are migrated after validation.
const rootSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "estimates": {"$ref": "#/$defs/collection", "additionalProperties": {"$ref": "#/$defs/estimate"}, "items": {"$ref": "#/$defs/estimate"}},
    "customerDetails": {"anyOf": [{"type": "null"}, {"$ref": "#/$defs/customerDetails"}]}
  },
  "$defs": {
    "collection": {"type": ["object", "array", "null"]},
    "id": {"type": ["string", "number"]},
    "number": {"type": ["number", "null"]},
    "estimate": {
      "type": ["object", "null"],
      "properties": {
        "id": {"$ref": "#/$defs/id"},
        "name": {"type": ["string", "null"]},
        "rooms": {"$ref": "#/$defs/collection", "additionalProperties": {"$ref": "#/$defs/room"}, "items": {"$ref": "#/$defs/room"}}
      }
    },
    "room": {
      "type": ["object", "null"],
      "properties": {
        "id": {"$ref": "#/$defs/id"},
        "width": {"$ref": "#/$defs/number"},
        "length": {"$ref": "#/$defs/number"},
        "products": {"$ref": "#/$defs/collection", "additionalProperties": {"$ref": "#/$defs/product"}, "items": {"$ref": "#/$defs/product"}},
        "product_suggestions": {"type": ["array", "null"]},
        "primary_category_product_id": {"type": ["string", "number", "null"]}
      }
    },
    "product": {
      "type": ["object", "null"],
      "properties": {
        "id": {"$ref": "#/$defs/id"},
        "min_price_total": {"$ref": "#/$defs/number"},
        "max_price_total": {"$ref": "#/$defs/number"},
        "is_primary_category": {"type": ["boolean", "null"]},
        "similar_products": {"type": ["array", "object", "null"]},
        "additional_products": {"$ref": "#/$defs/collection"},
        "additional_notes": {"$ref": "#/$defs/collection"}
      }
    },
    "customerDetails": {
      "type": "object",
      "properties": {
        "name": {"type": "string"},
        "email": {"type": "string"},
        "phone": {"type": "string"},
        "postcode": {"type": "string"}
      }
    }
  }
}`

var (
	rootSchemaOnce sync.Once
	rootSchema     *jsonschema.Schema
	rootSchemaErr  error
)

func compiledRootSchema() (*jsonschema.Schema, error) {
	rootSchemaOnce.Do(func() {
		rootSchema, rootSchemaErr = CompileSchema("estimate-root.json", rootSchemaJSON)
	})
	return rootSchema, rootSchemaErr
}

// CompileSchema compiles an inline JSON schema document.
func CompileSchema(name, document string) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(document))
	if err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", name, err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, doc); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", name, err)
	}
	return compiler.Compile(name)
}

// ValidateRecord checks a serialized root record against the storage schema.
func ValidateRecord(data []byte) error {
	schema, err := compiledRootSchema()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return err
	}
	return schema.Validate(inst)
}
