package coordinator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
)

const (
	estimateFormSchema = `{
  "type": "object",
  "required": ["estimate_name"],
  "properties": {
    "estimate_name": {"type": "string", "minLength": 1, "maxLength": 200, "pattern": "\\S"}
  }
}`
	roomFormSchema = `{
  "type": "object",
  "required": ["room_name", "room_width", "room_length"],
  "properties": {
    "room_name": {"type": "string", "minLength": 1, "maxLength": 200, "pattern": "\\S"},
    "room_width": {"type": "number", "exclusiveMinimum": 0},
    "room_length": {"type": "number", "exclusiveMinimum": 0}
  }
}`
	customerFormSchema = `{
  "type": "object",
  "required": ["customer_name", "customer_email", "customer_postcode"],
  "properties": {
    "customer_name": {"type": "string", "minLength": 1, "pattern": "\\S"},
    "customer_email": {"type": "string", "format": "email"},
    "customer_phone": {"type": "string", "pattern": "^[0-9+()\\s-]*$"},
    "customer_postcode": {"type": "string", "minLength": 3, "maxLength": 10}
  }
}`
)

var fieldMessages = map[string]string{
	"estimate_name":     "Please enter an estimate name",
	"room_name":         "Please enter a room name",
	"room_width":        "Please enter a valid width",
	"room_length":       "Please enter a valid length",
	"customer_name":     "Please enter your name",
	"customer_email":    "Please enter a valid email address",
	"customer_phone":    "Please enter a valid phone number",
	"customer_postcode": "Please enter a valid postcode",
}

type formSchemas struct {
	once     sync.Once
	err      error
	estimate *jsonschema.Schema
	room     *jsonschema.Schema
	customer *jsonschema.Schema
}

var forms formSchemas

func (f *formSchemas) load() error {
	f.once.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat()
		for name, doc := range map[string]string{
			"estimate-form.json": estimateFormSchema,
			"room-form.json":     roomFormSchema,
			"customer-form.json": customerFormSchema,
		} {
			parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(doc))
			if err != nil {
				f.err = fmt.Errorf("parse %s: %w", name, err)
				return
			}
			if err := compiler.AddResource(name, parsed); err != nil {
				f.err = fmt.Errorf("add %s: %w", name, err)
				return
			}
		}
		if f.estimate, f.err = compiler.Compile("estimate-form.json"); f.err != nil {
			return
		}
		if f.room, f.err = compiler.Compile("room-form.json"); f.err != nil {
			return
		}
		f.customer, f.err = compiler.Compile("customer-form.json")
	})
	return f.err
}

// validateForm checks form against schema and maps schema failures to
// per-field messages.
func validateForm(schema *jsonschema.Schema, form map[string]any) error {
	data, err := json.Marshal(form)
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return err
	}
	err = schema.Validate(inst)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	fields := map[string]struct{}{}
	collectFields(verr, fields)
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	out := &ValidationError{}
	for _, name := range names {
		out.Fields = append(out.Fields, FieldError{Field: name, Message: fieldMessage(name)})
	}
	if len(out.Fields) == 0 {
		out.Fields = []FieldError{{Field: "form", Message: "Please check the form"}}
	}
	return out
}

func collectFields(verr *jsonschema.ValidationError, into map[string]struct{}) {
	if len(verr.Causes) > 0 {
		for _, cause := range verr.Causes {
			collectFields(cause, into)
		}
		return
	}
	if required, ok := verr.ErrorKind.(*kind.Required); ok {
		for _, missing := range required.Missing {
			into[missing] = struct{}{}
		}
		return
	}
	if len(verr.InstanceLocation) > 0 {
		into[verr.InstanceLocation[0]] = struct{}{}
	}
}

func fieldMessage(field string) string {
	if msg, ok := fieldMessages[field]; ok {
		return msg
	}
	return "Please check this field"
}

// validateIDs rejects empty or malformed identifiers before any network
// call. Pairs are field name, value.
func validateIDs(pairs ...string) error {
	out := &ValidationError{}
	for i := 0; i+1 < len(pairs); i += 2 {
		field, value := pairs[i], pairs[i+1]
		if !validID(value) {
			out.Fields = append(out.Fields, FieldError{Field: field, Message: "Missing or malformed identifier"})
		}
	}
	if len(out.Fields) > 0 {
		return out
	}
	return nil
}

func validID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) || r == '/' {
			return false
		}
	}
	return true
}
