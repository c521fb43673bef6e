// Package schema holds the intermediate representation of a generated data
// schema, the fixed system catalog, and the merge/sanitize passes that make
// generator output structurally valid before scaffolding.
package schema

import (
	"fmt"

	appErr "github.com/appforge/engine/pkg/errors"
)

// Scalar field types understood by the target schema language.
const (
	TypeString   = "String"
	TypeInt      = "Int"
	TypeFloat    = "Float"
	TypeBoolean  = "Boolean"
	TypeDateTime = "DateTime"
	TypeJSON     = "Json"
)

// Schema is a set of models and enums.
type Schema struct {
	Models []Model `json:"models"`
	Enums  []Enum  `json:"enums"`
}

// Enum is a named set of values.
type Enum struct {
	Name   string   `json:"name" validate:"required"`
	Values []string `json:"values" validate:"min=1"`
}

// Model is one entity with its fields.
type Model struct {
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description"`
	Fields      []Field `json:"fields" validate:"min=1,dive"`
}

// Field is a single model field. Type is a scalar name, an enum name, or a
// target model name for relation fields.
type Field struct {
	Name       string    `json:"name" validate:"required"`
	Type       string    `json:"type" validate:"required"`
	IsID       bool      `json:"is_id"`
	IsRequired bool      `json:"is_required"`
	IsUnique   bool      `json:"is_unique"`
	IsList     bool      `json:"is_list"`
	Default    string    `json:"default"`
	Relation   *Relation `json:"relation,omitempty"`
}

// Relation binds a relation field to its foreign-key field(s) and the
// referenced field(s) on the target model.
type Relation struct {
	Fields     []string `json:"fields"`
	References []string `json:"references"`
}

// Model returns the named model, or nil.
func (s *Schema) Model(name string) *Model {
	for i := range s.Models {
		if s.Models[i].Name == name {
			return &s.Models[i]
		}
	}
	return nil
}

// Enum returns the named enum, or nil.
func (s *Schema) Enum(name string) *Enum {
	for i := range s.Enums {
		if s.Enums[i].Name == name {
			return &s.Enums[i]
		}
	}
	return nil
}

// Field returns the named field, or nil.
func (m *Model) Field(name string) *Field {
	for i := range m.Fields {
		if m.Fields[i].Name == name {
			return &m.Fields[i]
		}
	}
	return nil
}

func isScalar(t string) bool {
	switch t {
	case TypeString, TypeInt, TypeFloat, TypeBoolean, TypeDateTime, TypeJSON:
		return true
	}
	return false
}

// Validate checks structural invariants: model names unique, exactly one
// required identity field per model, and every relation target present.
func (s *Schema) Validate() error {
	seen := map[string]bool{}
	for _, m := range s.Models {
		if seen[m.Name] {
			return appErr.Newf(appErr.CodeInvalid, "duplicate model %q", m.Name)
		}
		seen[m.Name] = true

		ids := 0
		for _, f := range m.Fields {
			if f.IsID {
				ids++
				if !f.IsRequired {
					return appErr.Newf(appErr.CodeInvalid, "identity field %s.%s must be required", m.Name, f.Name)
				}
			}
		}
		if ids != 1 {
			return appErr.Newf(appErr.CodeInvalid, "model %q has %d identity fields, want 1", m.Name, ids)
		}
	}

	for _, m := range s.Models {
		for _, f := range m.Fields {
			if isScalar(f.Type) || s.Enum(f.Type) != nil {
				continue
			}
			if s.Model(f.Type) == nil {
				return appErr.Newf(appErr.CodeInvalid, "field %s.%s references unknown model %q", m.Name, f.Name, f.Type)
			}
		}
	}
	return nil
}

func (f Field) String() string {
	return fmt.Sprintf("%s %s", f.Name, f.Type)
}
