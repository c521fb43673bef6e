package schema

import (
	"fmt"
	"strings"
)

// Render serializes a schema to the target schema language.
func Render(s *Schema) string {
	var b strings.Builder
	for i, e := range s.Enums {
		if i > 0 {
			b.WriteString("\n")
		}
		renderEnum(&b, e)
	}
	for i, m := range s.Models {
		if i > 0 || len(s.Enums) > 0 {
			b.WriteString("\n")
		}
		renderModel(&b, m)
	}
	return b.String()
}

func renderEnum(b *strings.Builder, e Enum) {
	fmt.Fprintf(b, "enum %s {\n", e.Name)
	for _, v := range e.Values {
		fmt.Fprintf(b, "  %s\n", v)
	}
	b.WriteString("}\n")
}

func renderModel(b *strings.Builder, m Model) {
	if m.Description != "" {
		fmt.Fprintf(b, "// %s\n", m.Description)
	}
	fmt.Fprintf(b, "model %s {\n", m.Name)
	for _, f := range m.Fields {
		fmt.Fprintf(b, "  %s\n", RenderField(f))
	}
	b.WriteString("}\n")
}

// RenderField serializes one field declaration without indentation.
func RenderField(f Field) string {
	typ := f.Type
	if f.IsList {
		typ += "[]"
	} else if !f.IsRequired && !f.IsID {
		typ += "?"
	}

	parts := []string{f.Name, typ}
	if f.IsID {
		parts = append(parts, "@id")
	}
	if f.IsUnique && !f.IsID {
		parts = append(parts, "@unique")
	}
	if f.Default != "" {
		parts = append(parts, fmt.Sprintf("@default(%s)", f.Default))
	}
	if f.Relation != nil && len(f.Relation.Fields) > 0 {
		parts = append(parts, fmt.Sprintf("@relation(fields: [%s], references: [%s])",
			strings.Join(f.Relation.Fields, ", "), strings.Join(f.Relation.References, ", ")))
	}
	return strings.Join(parts, " ")
}
