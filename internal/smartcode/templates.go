package smartcode

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Template is a curated example code with {placeholder} segments.
type Template struct {
	Name        string
	Code        string
	Description string
}

var placeholderRE = regexp.MustCompile(`\{([a-z_]+)\}`)

var templates = map[string]Template{
	"entity.customer": {
		Name:        "entity.customer",
		Code:        "HERA.{industry}.CRM.CUSTOMER.{subtype}.V1",
		Description: "Customer master record",
	},
	"entity.product": {
		Name:        "entity.product",
		Code:        "HERA.{industry}.INV.PRODUCT.{subtype}.V1",
		Description: "Product or stock item",
	},
	"entity.service": {
		Name:        "entity.service",
		Code:        "HERA.{industry}.SVC.SERVICE.{subtype}.V1",
		Description: "Service offered to customers",
	},
	"entity.gl_account": {
		Name:        "entity.gl_account",
		Code:        "HERA.{industry}.FIN.GL.{subtype}.V1",
		Description: "Chart of accounts ledger account",
	},
	"field.attribute": {
		Name:        "field.attribute",
		Code:        "HERA.{industry}.{module}.FIELD.{field}.V1",
		Description: "Dynamic field attached to an entity",
	},
	"relationship.link": {
		Name:        "relationship.link",
		Code:        "HERA.{industry}.{module}.REL.{relationship}.V1",
		Description: "Typed edge between two entities",
	},
	"relationship.role": {
		Name:        "relationship.role",
		Code:        "HERA.SYS.RBAC.REL.HAS_ROLE.V1",
		Description: "Actor to role assignment",
	},
	"transaction.sale": {
		Name:        "transaction.sale",
		Code:        "HERA.{industry}.SALES.TXN.{subtype}.V1",
		Description: "Sale or service sale header",
	},
	"transaction.journal": {
		Name:        "transaction.journal",
		Code:        "HERA.{industry}.FIN.TXN.JOURNAL.V1",
		Description: "Manual journal entry",
	},
	"transaction.payment": {
		Name:        "transaction.payment",
		Code:        "HERA.{industry}.FIN.TXN.PAYMENT.V1",
		Description: "Outgoing payment",
	},
	"line.item": {
		Name:        "line.item",
		Code:        "HERA.{industry}.{module}.LINE.{subtype}.V1",
		Description: "Transaction line item",
	},
}

// Templates returns a copy of the curated template catalogue keyed by name.
func Templates() map[string]Template {
	out := make(map[string]Template, len(templates))
	for k, v := range templates {
		out[k] = v
	}
	return out
}

// TemplateNames lists template names in sorted order.
func TemplateNames() []string {
	names := make([]string, 0, len(templates))
	for k := range templates {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Placeholders returns the placeholder names used by a template code.
func Placeholders(code string) []string {
	matches := placeholderRE.FindAllStringSubmatch(code, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// Fill substitutes placeholders with upper-cased values and validates the
// resulting code.
func Fill(code string, values map[string]string) (string, error) {
	var missing []string
	filled := placeholderRE.ReplaceAllStringFunc(code, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := values[key]
		if !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, key)
			return m
		}
		return strings.ToUpper(strings.TrimSpace(v))
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("smartcode: missing placeholder values: %s", strings.Join(missing, ", "))
	}
	if err := Check(filled); err != nil {
		return "", err
	}
	return filled, nil
}
