package schema

import (
	"fmt"
	"regexp"

	"github.com/appforge/engine/pkg/logger"
	"go.uber.org/zap"
)

// Action records one repair applied by the sanitizer.
type Action struct {
	Rule   string `json:"rule"`
	Model  string `json:"model"`
	Field  string `json:"field"`
	Detail string `json:"detail"`
}

// RepairRule is one independently idempotent repair pass.
type RepairRule struct {
	Name  string
	Apply func(doc *document) []Action
}

// DefaultRules returns the repair passes in application order.
func DefaultRules() []RepairRule {
	return []RepairRule{
		{Name: "broken-one-to-one", Apply: repairBrokenOneToOne},
		{Name: "optional-foreign-key", Apply: repairOptionalForeignKeys},
		{Name: "restore-identity", Apply: restoreIdentityFields},
	}
}

// Sanitize applies the default repair rules to schema text and returns the
// repaired text plus the actions taken. Running it on its own output is a
// no-op.
func Sanitize(text string) (string, []Action) {
	doc := parseDocument(text)
	var actions []Action
	for _, rule := range DefaultRules() {
		for _, a := range rule.Apply(doc) {
			logger.L().Info("schema sanitize",
				zap.String("rule", a.Rule),
				zap.String("model", a.Model),
				zap.String("field", a.Field),
				zap.String("detail", a.Detail),
			)
			actions = append(actions, a)
		}
	}
	return doc.render(), actions
}

// repairBrokenOneToOne downgrades a one-to-one relation whose foreign key
// carries no uniqueness guarantee: the field-level binding is removed and the
// reference becomes optional. The target schema language rejects such
// relations outright; a dangling optional reference keeps the schema valid.
func repairBrokenOneToOne(doc *document) []Action {
	var actions []Action
	for _, n := range doc.nodes {
		if n.model == nil {
			continue
		}
		for _, b := range n.model.body {
			f := b.field
			if f == nil || f.list || !f.hasAttr("@relation") {
				continue
			}
			fk := f.foreignKey()
			if fk == "" {
				continue
			}
			if target := doc.model(f.baseType); target != nil {
				if back := backRelation(target, n.model.name); back != nil && back.list {
					continue // one-to-many, unique FK not required
				}
			}
			fkField := n.model.field(fk)
			if fkField != nil && (fkField.isUnique() || n.model.hasCompositeUnique(fk)) {
				continue
			}
			f.removeAttr("@relation")
			f.optional = true
			f.dirty = true
			actions = append(actions, Action{
				Rule:   "broken-one-to-one",
				Model:  n.model.name,
				Field:  f.name,
				Detail: fmt.Sprintf("foreign key %q is not unique; relation binding removed", fk),
			})
		}
	}
	return actions
}

func backRelation(target *modelBlock, modelName string) *fieldDecl {
	for _, b := range target.body {
		if b.field != nil && b.field.baseType == modelName {
			return b.field
		}
	}
	return nil
}

var fkNameRe = regexp.MustCompile(`(Id|_id)$`)

// repairOptionalForeignKeys makes every foreign-key-named scalar field
// optional, keeping any uniqueness modifier. Generators routinely emit
// required FK columns for relations that were just downgraded.
func repairOptionalForeignKeys(doc *document) []Action {
	var actions []Action
	for _, n := range doc.nodes {
		if n.model == nil {
			continue
		}
		for _, b := range n.model.body {
			f := b.field
			if f == nil || f.list || f.optional || f.hasAttr("@id") {
				continue
			}
			if !isScalar(f.baseType) || !fkNameRe.MatchString(f.name) {
				continue
			}
			f.optional = true
			f.dirty = true
			actions = append(actions, Action{
				Rule:   "optional-foreign-key",
				Model:  n.model.name,
				Field:  f.name,
				Detail: "foreign-key field made optional",
			})
		}
	}
	return actions
}

// restoreIdentityFields forces any optional identity field back to required.
// An optional primary key is never valid, whether the generator emitted it
// that way or an earlier pass loosened it.
func restoreIdentityFields(doc *document) []Action {
	var actions []Action
	for _, n := range doc.nodes {
		if n.model == nil {
			continue
		}
		for _, b := range n.model.body {
			f := b.field
			if f == nil || !f.hasAttr("@id") || !f.optional {
				continue
			}
			f.optional = false
			f.dirty = true
			actions = append(actions, Action{
				Rule:   "restore-identity",
				Model:  n.model.name,
				Field:  f.name,
				Detail: "identity field restored to required",
			})
		}
	}
	return actions
}

// SanitizeMerged repairs a merged schema's text in place.
func SanitizeMerged(m *Merged) []Action {
	text, actions := Sanitize(m.Text)
	m.Text = text
	if len(actions) > 0 {
		logger.L().Info("schema sanitized", zap.Int("repairs", len(actions)))
	}
	return actions
}
