package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Status enumerates the transaction lifecycle.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusPosted   Status = "posted"
	StatusReversed Status = "reversed"
	StatusConsumed Status = "consumed"
)

// Line types that take part in the debit/credit balance check.
const (
	LineDebit  = "debit"
	LineCredit = "credit"
)

// DefaultTolerance is the absolute amount difference accepted by the
// balance and total checks.
const DefaultTolerance = 0.01

// Transaction is a universal transaction header with its lines.
type Transaction struct {
	ID                uuid.UUID      `json:"id"`
	OrganizationID    uuid.UUID      `json:"organization_id"`
	TransactionType   string         `json:"transaction_type"`
	TransactionCode   string         `json:"transaction_code"`
	TransactionDate   time.Time      `json:"transaction_date"`
	SmartCode         string         `json:"smart_code"`
	TotalAmount       float64        `json:"total_amount"`
	SourceEntityID    *uuid.UUID     `json:"source_entity_id,omitempty"`
	TargetEntityID    *uuid.UUID     `json:"target_entity_id,omitempty"`
	Status            Status         `json:"transaction_status"`
	ReferenceNumber   string         `json:"reference_number,omitempty"`
	ExternalReference string         `json:"external_reference,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedBy         uuid.UUID      `json:"created_by"`
	UpdatedBy         uuid.UUID      `json:"updated_by"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	Lines             []Line         `json:"lines"`
}

// Line is one universal transaction line. AccountCode is stored in
// line_data as gl_account_code.
type Line struct {
	ID             uuid.UUID      `json:"id"`
	OrganizationID uuid.UUID      `json:"organization_id"`
	TransactionID  uuid.UUID      `json:"transaction_id"`
	LineNumber     int            `json:"line_number"`
	LineType       string         `json:"line_type"`
	EntityID       *uuid.UUID     `json:"entity_id,omitempty"`
	Quantity       float64        `json:"quantity"`
	UnitAmount     float64        `json:"unit_amount"`
	LineAmount     float64        `json:"line_amount"`
	TaxAmount      *float64       `json:"tax_amount,omitempty"`
	SmartCode      string         `json:"smart_code"`
	AccountCode    string         `json:"gl_account_code,omitempty"`
	LineData       map[string]any `json:"line_data,omitempty"`
}

// HeaderInput carries the header fields for Post.
type HeaderInput struct {
	OrganizationID  uuid.UUID `validate:"required"`
	TransactionType string    `validate:"required,max=100"`
	TransactionCode string    `validate:"max=200"`
	TransactionDate time.Time
	SmartCode       string `validate:"required"`
	TotalAmount     float64
	SourceEntityID  *uuid.UUID
	TargetEntityID  *uuid.UUID
	Status          Status `validate:"omitempty,oneof=draft posted"`
	Metadata        map[string]any
}

// LineInput carries one line for Post.
type LineInput struct {
	OrganizationID uuid.UUID `validate:"required"`
	LineNumber     int
	LineType       string `validate:"required,max=50"`
	EntityID       *uuid.UUID
	Quantity       float64
	UnitAmount     float64
	LineAmount     float64
	TaxAmount      *float64
	SmartCode      string `validate:"required"`
	AccountCode    string `validate:"max=50"`
	LineData       map[string]any
}

// AmendResult is the outcome of AmendStatus. Reversal is set when a posted
// transaction was reversed.
type AmendResult struct {
	Transaction Transaction  `json:"transaction"`
	Reversal    *Transaction `json:"reversal,omitempty"`
}

// ReconcileFilter selects the reporting slice. Zero values match everything.
type ReconcileFilter struct {
	From             time.Time `json:"from"`
	To               time.Time `json:"to"`
	TransactionTypes []string  `json:"transaction_types,omitempty"`
	SmartCodePrefix  string    `json:"smart_code_prefix,omitempty"`
}

// AccountTotals are signed balances per account class. Assets and expenses
// are debit-normal; the other classes are credit-normal.
type AccountTotals struct {
	Assets      float64 `json:"assets"`
	Liabilities float64 `json:"liabilities"`
	Equity      float64 `json:"equity"`
	Revenue     float64 `json:"revenue"`
	Expenses    float64 `json:"expenses"`
}

// ReconcileResult reports whether assets equal liabilities plus equity,
// with current earnings counted as equity.
type ReconcileResult struct {
	OrganizationID uuid.UUID     `json:"organization_id"`
	Balanced       bool          `json:"balanced"`
	Difference     float64       `json:"difference"`
	Totals         AccountTotals `json:"totals"`
}

// DocumentNumber is a generated transaction reference.
type DocumentNumber struct {
	TransactionCode   string `json:"transaction_code"`
	ReferenceNumber   string `json:"reference_number"`
	ExternalReference string `json:"external_reference"`
}
