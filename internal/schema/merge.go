package schema

import (
	appErr "github.com/appforge/engine/pkg/errors"
)

// SystemDelimiter separates generated business text from the appended system
// block. Everything below it is owned by the catalog.
const SystemDelimiter = "// ---------- appforge system models ----------"

// Merged is the combination of business schema and system catalog. Text is
// append-only: the business text is rendered once and never rewritten, the
// system block is always appended behind the delimiter.
type Merged struct {
	Schema Schema
	Text   string
}

// Merge combines the business schema with the fixed system catalog and
// validates the result. Business model names may not collide with catalog
// names.
func Merge(business *Schema) (*Merged, error) {
	cat := SystemCatalog()

	for _, m := range business.Models {
		if cat.Model(m.Name) != nil {
			return nil, appErr.Newf(appErr.CodeConflict, "business model %q collides with a system model", m.Name)
		}
	}
	for _, e := range business.Enums {
		if cat.Enum(e.Name) != nil {
			return nil, appErr.Newf(appErr.CodeConflict, "business enum %q collides with a system enum", e.Name)
		}
	}

	combined := Schema{
		Models: append(append([]Model{}, business.Models...), cat.Models...),
		Enums:  append(append([]Enum{}, business.Enums...), cat.Enums...),
	}
	if err := combined.Validate(); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInvalid, "merged schema invalid")
	}

	text := Render(business) + "\n" + SystemDelimiter + "\n\n" + Render(cat)
	return &Merged{Schema: combined, Text: text}, nil
}
