package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heraerp/heraerp-prd-sub081/internal/platform/db"
	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
)

const (
	transactionCodeIndex = "uq_universal_transactions_code"
	accountCodeKey       = "gl_account_code"
)

const transactionColumns = `id, organization_id, transaction_type, transaction_code, transaction_date, smart_code,
total_amount, source_entity_id, target_entity_id, transaction_status, reference_number, external_reference,
metadata, created_by, updated_by, created_at, updated_at`

// Repository is the pgx-backed ledger store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a RepeatableRead transaction so a header and its
// lines become visible together or not at all.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetTransaction loads a transaction and its lines.
func (r *Repository) GetTransaction(ctx context.Context, orgID, id uuid.UUID) (Transaction, error) {
	return loadTransaction(ctx, r.pool, orgID, id, false)
}

// AccountTotals sums debit/credit lines per account class. The class is the
// first digit of the account code: 1 asset, 2 liability, 3 equity,
// 4 revenue, anything else expense.
func (r *Repository) AccountTotals(ctx context.Context, orgID uuid.UUID, filter ReconcileFilter) (AccountTotals, error) {
	var (
		clauses = []string{
			"t.organization_id=$1",
			"t.transaction_status<>'draft'",
			"t.transaction_type<>'" + shared.AuditTransactionType + "'",
			"l.line_type IN ('debit','credit')",
			"COALESCE(l.line_data->>'gl_account_code','')<>''",
		}
		args = []any{orgID}
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if !filter.From.IsZero() {
		add("t.transaction_date>=$%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("t.transaction_date<$%d", filter.To)
	}
	if len(filter.TransactionTypes) > 0 {
		add("t.transaction_type = ANY($%d)", filter.TransactionTypes)
	}
	if filter.SmartCodePrefix != "" {
		clause, prefixArgs := db.SegmentPrefix("t.smart_code", filter.SmartCodePrefix, len(args)+1)
		args = append(args, prefixArgs...)
		clauses = append(clauses, clause)
	}
	query := `WITH signed AS (
  SELECT left(l.line_data->>'gl_account_code', 1) AS class,
         CASE l.line_type WHEN 'debit' THEN l.line_amount ELSE -l.line_amount END AS amount
  FROM universal_transaction_lines l
  JOIN universal_transactions t ON t.id = l.transaction_id AND t.organization_id = l.organization_id
  WHERE ` + strings.Join(clauses, " AND ") + `
)
SELECT
  COALESCE(SUM(amount) FILTER (WHERE class='1'), 0),
  COALESCE(-SUM(amount) FILTER (WHERE class='2'), 0),
  COALESCE(-SUM(amount) FILTER (WHERE class='3'), 0),
  COALESCE(-SUM(amount) FILTER (WHERE class='4'), 0),
  COALESCE(SUM(amount) FILTER (WHERE class NOT IN ('1','2','3','4')), 0)
FROM signed`
	var totals AccountTotals
	err := r.pool.QueryRow(ctx, query, args...).Scan(&totals.Assets, &totals.Liabilities, &totals.Equity, &totals.Revenue, &totals.Expenses)
	return totals, err
}

type txRepo struct {
	tx pgx.Tx
}

func (r *txRepo) InsertTransaction(ctx context.Context, t Transaction) error {
	metadata := t.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	_, err := r.tx.Exec(ctx, `INSERT INTO universal_transactions (`+transactionColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		t.ID, t.OrganizationID, t.TransactionType, t.TransactionCode, t.TransactionDate, t.SmartCode,
		t.TotalAmount, t.SourceEntityID, t.TargetEntityID, string(t.Status), nullString(t.ReferenceNumber), nullString(t.ExternalReference),
		metadata, nullUUID(t.CreatedBy), nullUUID(t.UpdatedBy), t.CreatedAt, t.UpdatedAt)
	if db.IsUniqueViolation(err, transactionCodeIndex) {
		return shared.Errorf(shared.KindDuplicateCode, "transaction code %q already used for %s", t.TransactionCode, t.TransactionType)
	}
	return err
}

// InsertLines sends every line in one batch round trip.
func (r *txRepo) InsertLines(ctx context.Context, lines []Line) error {
	batch := &pgx.Batch{}
	for _, line := range lines {
		batch.Queue(`INSERT INTO universal_transaction_lines
(id, organization_id, transaction_id, line_number, line_type, entity_id, quantity, unit_amount, line_amount, tax_amount, smart_code, line_data)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			line.ID, line.OrganizationID, line.TransactionID, line.LineNumber, line.LineType, line.EntityID,
			line.Quantity, line.UnitAmount, line.LineAmount, line.TaxAmount, line.SmartCode, lineData(line))
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepo) LockTransaction(ctx context.Context, orgID, id uuid.UUID) (Transaction, error) {
	return loadTransaction(ctx, r.tx, orgID, id, true)
}

func (r *txRepo) UpdateStatus(ctx context.Context, t Transaction) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE universal_transactions SET transaction_status=$3, metadata=$4, updated_by=$5, updated_at=$6
WHERE organization_id=$1 AND id=$2`, t.OrganizationID, t.ID, string(t.Status), t.Metadata, nullUUID(t.UpdatedBy), t.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.Errorf(shared.KindNotFound, "transaction %s not found", t.ID)
	}
	return nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadTransaction(ctx context.Context, q querier, orgID, id uuid.UUID, lock bool) (Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM universal_transactions WHERE organization_id=$1 AND id=$2 AND transaction_type<>$3`
	if lock {
		query += ` FOR UPDATE`
	}
	var (
		t                    Transaction
		status               string
		reference, external  *string
		createdBy, updatedBy *uuid.UUID
	)
	err := q.QueryRow(ctx, query, orgID, id, shared.AuditTransactionType).Scan(&t.ID, &t.OrganizationID, &t.TransactionType, &t.TransactionCode,
		&t.TransactionDate, &t.SmartCode, &t.TotalAmount, &t.SourceEntityID, &t.TargetEntityID, &status, &reference, &external,
		&t.Metadata, &createdBy, &updatedBy, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, shared.Errorf(shared.KindNotFound, "transaction %s not found", id)
	}
	if err != nil {
		return Transaction{}, err
	}
	t.Status = Status(status)
	if reference != nil {
		t.ReferenceNumber = *reference
	}
	if external != nil {
		t.ExternalReference = *external
	}
	if createdBy != nil {
		t.CreatedBy = *createdBy
	}
	if updatedBy != nil {
		t.UpdatedBy = *updatedBy
	}
	rows, err := q.Query(ctx, `SELECT id, organization_id, transaction_id, line_number, line_type, entity_id, quantity, unit_amount,
line_amount, tax_amount, smart_code, line_data
FROM universal_transaction_lines WHERE organization_id=$1 AND transaction_id=$2 ORDER BY line_number`, orgID, id)
	if err != nil {
		return Transaction{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.OrganizationID, &line.TransactionID, &line.LineNumber, &line.LineType, &line.EntityID,
			&line.Quantity, &line.UnitAmount, &line.LineAmount, &line.TaxAmount, &line.SmartCode, &line.LineData); err != nil {
			return Transaction{}, err
		}
		if code, ok := line.LineData[accountCodeKey].(string); ok {
			line.AccountCode = code
		}
		t.Lines = append(t.Lines, line)
	}
	return t, rows.Err()
}

func lineData(line Line) map[string]any {
	data := make(map[string]any, len(line.LineData)+1)
	for k, v := range line.LineData {
		data[k] = v
	}
	if line.AccountCode != "" {
		data[accountCodeKey] = line.AccountCode
	}
	return data
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}
