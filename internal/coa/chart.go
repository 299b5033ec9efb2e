package coa

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AccountEntityType is the entity type holding ledger accounts.
const AccountEntityType = "gl_account"

// Account categories every chart must cover.
const (
	CategoryAsset     = "asset"
	CategoryLiability = "liability"
	CategoryEquity    = "equity"
	CategoryRevenue   = "revenue"
	CategoryExpense   = "expense"
)

// RequiredCategories lists the categories checked by ValidateChartExists.
var RequiredCategories = []string{CategoryAsset, CategoryLiability, CategoryEquity, CategoryRevenue, CategoryExpense}

// Account is one chart entry.
type Account struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Chart is an organization's set of accounts keyed by code.
type Chart map[string]Account

// Has reports whether code is in the chart.
func (c Chart) Has(code string) bool {
	_, ok := c[code]
	return ok
}

// ChartSource loads the accounts of an organization.
type ChartSource interface {
	Accounts(ctx context.Context, orgID uuid.UUID) ([]Account, error)
}

// CategoryFor classifies an account code by its leading digit when the
// account carries no explicit type.
func CategoryFor(code string) string {
	if code == "" {
		return ""
	}
	switch code[0] {
	case '1':
		return CategoryAsset
	case '2':
		return CategoryLiability
	case '3':
		return CategoryEquity
	case '4':
		return CategoryRevenue
	case '5', '6', '7', '8', '9':
		return CategoryExpense
	}
	return ""
}

// Repository reads the chart from gl_account entities. The category comes
// from the account_type dynamic field.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the chart repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Accounts lists active accounts of the organization.
func (r *Repository) Accounts(ctx context.Context, orgID uuid.UUID) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT e.entity_code, e.entity_name, COALESCE(d.field_value_text, '')
FROM core_entities e
LEFT JOIN core_dynamic_data d ON d.organization_id = e.organization_id AND d.entity_id = e.id AND d.field_name = 'account_type'
WHERE e.organization_id=$1 AND e.entity_type=$2 AND e.status='active' AND e.entity_code IS NOT NULL
ORDER BY e.entity_code`, orgID, AccountEntityType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.Code, &a.Name, &a.Category); err != nil {
			return nil, err
		}
		a.Category = strings.ToLower(strings.TrimSpace(a.Category))
		out = append(out, a)
	}
	return out, rows.Err()
}
