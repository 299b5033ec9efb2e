package coa

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/heraerp/heraerp-prd-sub081/internal/ledger"
	"github.com/heraerp/heraerp-prd-sub081/internal/rbac"
	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
)

// ChartStatus is the soft result of ValidateChartExists.
type ChartStatus struct {
	Valid                    bool     `json:"valid"`
	MissingAccountCategories []string `json:"missing_account_categories"`
	Accounts                 int      `json:"accounts"`
}

// Enforcer checks ledger accounts against the chart and issues document
// numbers. It satisfies ledger.AccountEnforcer and ledger.Numberer.
type Enforcer struct {
	chart   ChartSource
	seq     Sequencer
	mapping Mapping
	logger  *slog.Logger
	now     func() time.Time
}

// NewEnforcer constructs the enforcer with an explicit mapping table.
func NewEnforcer(chart ChartSource, seq Sequencer, mapping Mapping, logger *slog.Logger) *Enforcer {
	if mapping.DefaultDebit == "" {
		mapping.DefaultDebit = DefaultDebitAccount
	}
	if mapping.DefaultCredit == "" {
		mapping.DefaultCredit = DefaultCreditAccount
	}
	return &Enforcer{chart: chart, seq: seq, mapping: mapping, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (e *Enforcer) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Chart loads the organization's chart.
func (e *Enforcer) Chart(ctx context.Context, orgID uuid.UUID) (Chart, error) {
	accounts, err := e.chart.Accounts(ctx, orgID)
	if err != nil {
		return nil, shared.WrapPersistence("coa: load chart", err)
	}
	chart := make(Chart, len(accounts))
	for _, a := range accounts {
		if a.Category == "" {
			a.Category = CategoryFor(a.Code)
		}
		chart[a.Code] = a
	}
	return chart, nil
}

// ValidateChartExists reports which required categories have no account.
// A missing chart is reported, not returned as an error.
func (e *Enforcer) ValidateChartExists(ctx context.Context, orgID uuid.UUID) (ChartStatus, error) {
	if _, err := rbac.Require(ctx, orgID, shared.PermEntitiesRead, "coa"); err != nil {
		return ChartStatus{}, err
	}
	chart, err := e.Chart(ctx, orgID)
	if err != nil {
		return ChartStatus{}, err
	}
	seen := map[string]bool{}
	for _, a := range chart {
		seen[a.Category] = true
	}
	status := ChartStatus{Accounts: len(chart), MissingAccountCategories: []string{}}
	for _, cat := range RequiredCategories {
		if !seen[cat] {
			status.MissingAccountCategories = append(status.MissingAccountCategories, cat)
		}
	}
	status.Valid = len(status.MissingAccountCategories) == 0
	return status, nil
}

// GenerateDocumentNumber issues the next reference for the transaction
// type. The counter is scoped to (organization, type, period).
func (e *Enforcer) GenerateDocumentNumber(ctx context.Context, orgID uuid.UUID, transactionType string, at time.Time) (ledger.DocumentNumber, error) {
	if at.IsZero() {
		at = e.now()
	}
	at = at.UTC()
	f := formatFor(transactionType, at)
	n, err := e.seq.Next(ctx, strings.Join([]string{orgID.String(), strings.ToLower(transactionType), f.period}, ":"))
	if err != nil {
		return ledger.DocumentNumber{}, shared.WrapPersistence("coa: next sequence", err)
	}
	code := fmt.Sprintf("%s-%s-%0*d", f.prefix, f.stamp, f.width, n)
	return ledger.DocumentNumber{
		TransactionCode:   code,
		ReferenceNumber:   strings.ToUpper(orgID.String()[:8]) + "/" + code,
		ExternalReference: strings.ReplaceAll(code, "-", ""),
	}, nil
}

type numberFormat struct {
	prefix string
	stamp  string
	period string
	width  int
}

func formatFor(transactionType string, at time.Time) numberFormat {
	switch strings.ToLower(transactionType) {
	case "journal_entry", "journal":
		return numberFormat{prefix: "JE", stamp: at.Format("2006-01"), period: at.Format("200601"), width: 3}
	case "sale", "service_sale", "sales_invoice", "invoice":
		return numberFormat{prefix: "INV", stamp: at.Format("20060102"), period: at.Format("20060102"), width: 3}
	case "purchase", "purchase_order":
		return numberFormat{prefix: "PO", stamp: at.Format("2006"), period: at.Format("2006"), width: 4}
	case "payment":
		return numberFormat{prefix: "PAY", stamp: at.Format("200601"), period: at.Format("200601"), width: 3}
	case "receipt":
		return numberFormat{prefix: "RCP", stamp: at.Format("200601"), period: at.Format("200601"), width: 3}
	}
	return numberFormat{prefix: genericPrefix(transactionType), stamp: at.Format("20060102150405"), period: at.Format("20060102"), width: 3}
}

func genericPrefix(transactionType string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(transactionType) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			if b.Len() == 3 {
				break
			}
		}
	}
	if b.Len() == 0 {
		return "TXN"
	}
	return b.String()
}

// AutoAssignAccounts fills the account of every line that has neither an
// account nor an entity reference. Debit lines take the mapping's debit
// account, all others its credit account. An inferred account missing from
// the chart leaves the line unchanged.
func (e *Enforcer) AutoAssignAccounts(ctx context.Context, orgID uuid.UUID, transactionType, smartCode string, lines []ledger.LineInput) ([]ledger.LineInput, error) {
	out := append([]ledger.LineInput(nil), lines...)
	pending := false
	for _, l := range out {
		if l.AccountCode == "" && l.EntityID == nil {
			pending = true
			break
		}
	}
	if !pending {
		return out, nil
	}
	chart, err := e.Chart(ctx, orgID)
	if err != nil {
		return nil, err
	}
	debit, credit := e.mapping.Lookup(smartCode)
	for i, l := range out {
		if l.AccountCode != "" || l.EntityID != nil {
			continue
		}
		account := credit
		if l.LineType == ledger.LineDebit {
			account = debit
		}
		if !chart.Has(account) {
			if e.logger != nil {
				e.logger.Warn("coa: inferred account not in chart",
					slog.String("organization_id", orgID.String()),
					slog.String("transaction_type", transactionType),
					slog.String("account", account))
			}
			continue
		}
		out[i].AccountCode = account
	}
	return out, nil
}

// ValidateAccounts rejects lines whose account is outside the chart, and
// debit/credit lines with neither an account nor an entity.
func (e *Enforcer) ValidateAccounts(ctx context.Context, orgID uuid.UUID, lines []ledger.LineInput) error {
	needsChart := false
	for _, l := range lines {
		if l.AccountCode != "" {
			needsChart = true
			continue
		}
		if l.EntityID == nil && (l.LineType == ledger.LineDebit || l.LineType == ledger.LineCredit) {
			return shared.Errorf(shared.KindInvalidAccount, "line %d has no ledger account", l.LineNumber)
		}
	}
	if !needsChart {
		return nil
	}
	chart, err := e.Chart(ctx, orgID)
	if err != nil {
		return err
	}
	for _, l := range lines {
		if l.AccountCode != "" && !chart.Has(l.AccountCode) {
			return shared.Errorf(shared.KindInvalidAccount, "line %d account %s is not in the chart", l.LineNumber, l.AccountCode)
		}
	}
	return nil
}
