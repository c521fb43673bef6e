package schema

import (
	"regexp"
	"strings"
)

// The sanitizer edits schema text line by line: only lines owned by repaired
// fields are rewritten, everything else round-trips verbatim.

type document struct {
	nodes []*docNode
}

type docNode struct {
	raw   string
	model *modelBlock
}

type modelBlock struct {
	name   string
	header string
	body   []*bodyLine
	footer string
}

type bodyLine struct {
	raw   string
	field *fieldDecl
}

type fieldDecl struct {
	indent   string
	name     string
	baseType string
	list     bool
	optional bool
	attrs    []string
	dirty    bool
}

var (
	modelHeaderRe = regexp.MustCompile(`^model\s+(\w+)\s*\{\s*$`)
	fieldLineRe   = regexp.MustCompile(`^(\s+)([A-Za-z_]\w*)\s+([A-Za-z_]\w*)(\[\])?(\?)?\s*(.*)$`)
	relFieldsRe   = regexp.MustCompile(`fields:\s*\[\s*([^\]\s,]+)`)
)

func parseDocument(text string) *document {
	doc := &document{}
	lines := strings.Split(text, "\n")
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		m := modelHeaderRe.FindStringSubmatch(line)
		if m == nil {
			doc.nodes = append(doc.nodes, &docNode{raw: line})
			continue
		}
		block := &modelBlock{name: m[1], header: line}
		for i++; i < len(lines); i++ {
			if strings.TrimSpace(lines[i]) == "}" {
				block.footer = lines[i]
				break
			}
			block.body = append(block.body, parseBodyLine(lines[i]))
		}
		doc.nodes = append(doc.nodes, &docNode{model: block})
	}
	return doc
}

func parseBodyLine(line string) *bodyLine {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "@@") {
		return &bodyLine{raw: line}
	}
	m := fieldLineRe.FindStringSubmatch(line)
	if m == nil {
		return &bodyLine{raw: line}
	}
	return &bodyLine{
		raw: line,
		field: &fieldDecl{
			indent:   m[1],
			name:     m[2],
			baseType: m[3],
			list:     m[4] != "",
			optional: m[5] != "",
			attrs:    splitAttrs(m[6]),
		},
	}
}

// splitAttrs extracts @attr tokens, keeping parenthesized arguments intact.
func splitAttrs(s string) []string {
	var attrs []string
	for i := 0; i < len(s); i++ {
		if s[i] != '@' {
			continue
		}
		j := i + 1
		for j < len(s) && (isWordByte(s[j]) || s[j] == '@') {
			j++
		}
		if j < len(s) && s[j] == '(' {
			depth := 0
			for ; j < len(s); j++ {
				if s[j] == '(' {
					depth++
				} else if s[j] == ')' {
					depth--
					if depth == 0 {
						j++
						break
					}
				}
			}
		}
		attrs = append(attrs, strings.TrimSpace(s[i:j]))
		i = j - 1
	}
	return attrs
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func (f *fieldDecl) hasAttr(name string) bool {
	return f.attr(name) != ""
}

// attr returns the full raw attribute starting with name, or "".
func (f *fieldDecl) attr(name string) string {
	for _, a := range f.attrs {
		if a == name || strings.HasPrefix(a, name+"(") {
			return a
		}
	}
	return ""
}

func (f *fieldDecl) removeAttr(name string) {
	out := f.attrs[:0]
	for _, a := range f.attrs {
		if a == name || strings.HasPrefix(a, name+"(") {
			continue
		}
		out = append(out, a)
	}
	f.attrs = out
}

func (f *fieldDecl) isUnique() bool {
	return f.hasAttr("@id") || f.hasAttr("@unique")
}

// foreignKey returns the first fields: entry of the @relation attribute.
func (f *fieldDecl) foreignKey() string {
	rel := f.attr("@relation")
	if rel == "" {
		return ""
	}
	m := relFieldsRe.FindStringSubmatch(rel)
	if m == nil {
		return ""
	}
	return m[1]
}

func (f *fieldDecl) render() string {
	typ := f.baseType
	if f.list {
		typ += "[]"
	} else if f.optional {
		typ += "?"
	}
	parts := append([]string{f.name, typ}, f.attrs...)
	return f.indent + strings.Join(parts, " ")
}

func (b *bodyLine) render() string {
	if b.field == nil || !b.field.dirty {
		return b.raw
	}
	return b.field.render()
}

func (mb *modelBlock) field(name string) *fieldDecl {
	for _, b := range mb.body {
		if b.field != nil && b.field.name == name {
			return b.field
		}
	}
	return nil
}

// hasCompositeUnique reports whether a model-level @@unique covers the field.
func (mb *modelBlock) hasCompositeUnique(field string) bool {
	for _, b := range mb.body {
		t := strings.TrimSpace(b.raw)
		if strings.HasPrefix(t, "@@unique") && strings.Contains(t, field) {
			return true
		}
	}
	return false
}

func (d *document) model(name string) *modelBlock {
	for _, n := range d.nodes {
		if n.model != nil && n.model.name == name {
			return n.model
		}
	}
	return nil
}

func (d *document) render() string {
	var lines []string
	for _, n := range d.nodes {
		if n.model == nil {
			lines = append(lines, n.raw)
			continue
		}
		lines = append(lines, n.model.header)
		for _, b := range n.model.body {
			lines = append(lines, b.render())
		}
		lines = append(lines, n.model.footer)
	}
	return strings.Join(lines, "\n")
}
