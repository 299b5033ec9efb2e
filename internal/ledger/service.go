package ledger

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/heraerp/heraerp-prd-sub081/internal/platform/cache"
	"github.com/heraerp/heraerp-prd-sub081/internal/rbac"
	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
	"github.com/heraerp/heraerp-prd-sub081/internal/smartcode"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetTransaction(ctx context.Context, orgID, id uuid.UUID) (Transaction, error)
	AccountTotals(ctx context.Context, orgID uuid.UUID, filter ReconcileFilter) (AccountTotals, error)
}

// TxRepository exposes the writes available inside a transaction.
type TxRepository interface {
	InsertTransaction(ctx context.Context, t Transaction) error
	InsertLines(ctx context.Context, lines []Line) error
	LockTransaction(ctx context.Context, orgID, id uuid.UUID) (Transaction, error)
	UpdateStatus(ctx context.Context, t Transaction) error
}

// AccountEnforcer fills in and checks ledger accounts on lines.
type AccountEnforcer interface {
	AutoAssignAccounts(ctx context.Context, orgID uuid.UUID, transactionType, smartCode string, lines []LineInput) ([]LineInput, error)
	ValidateAccounts(ctx context.Context, orgID uuid.UUID, lines []LineInput) error
}

// Numberer issues document numbers for transactions posted without a code.
type Numberer interface {
	GenerateDocumentNumber(ctx context.Context, orgID uuid.UUID, transactionType string, at time.Time) (DocumentNumber, error)
}

// Recorder receives ledger metrics.
type Recorder interface {
	TransactionPosted(transactionType string)
	PostingRejected(kind string)
	Reconciled(balanced bool)
}

// Options configures the ledger service.
type Options struct {
	Tolerance float64
	Accounts  AccountEnforcer
	Numbers   Numberer
	Cache     *cache.Versioned
	Metrics   Recorder
}

// Service implements the transaction ledger.
type Service struct {
	repo   RepositoryPort
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, opts Options, logger *slog.Logger) *Service {
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	return &Service{repo: repo, opts: opts, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Post validates and persists a transaction with its lines as one atomic
// unit. Nothing is written when any check fails.
func (s *Service) Post(ctx context.Context, header HeaderInput, lines []LineInput) (Transaction, error) {
	txn, err := s.post(ctx, header, lines)
	if err != nil {
		s.rejected(err)
		return Transaction{}, err
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.TransactionPosted(txn.TransactionType)
	}
	return txn, nil
}

func (s *Service) post(ctx context.Context, header HeaderInput, lines []LineInput) (Transaction, error) {
	if err := shared.ValidateStruct(header); err != nil {
		return Transaction{}, err
	}
	resource := "transaction:" + header.TransactionType
	sc, err := rbac.Require(ctx, header.OrganizationID, shared.PermTransactionsPost, resource)
	if err != nil {
		return Transaction{}, err
	}
	if err := smartcode.Check(header.SmartCode); err != nil {
		return Transaction{}, err
	}
	for _, line := range lines {
		if err := shared.ValidateStruct(line); err != nil {
			return Transaction{}, err
		}
		if err := smartcode.Check(line.SmartCode); err != nil {
			return Transaction{}, err
		}
	}
	if err := ValidateLines(header.OrganizationID, header.TotalAmount, lines, s.opts.Tolerance); err != nil {
		if shared.SecurityKind(shared.KindOf(err)) {
			sc.Audit(ctx, "transaction.post", resource, shared.AuditDenied, shared.Reason(err), nil)
		}
		return Transaction{}, err
	}
	if s.opts.Accounts != nil {
		lines, err = s.opts.Accounts.AutoAssignAccounts(ctx, header.OrganizationID, header.TransactionType, header.SmartCode, lines)
		if err != nil {
			return Transaction{}, err
		}
		if err := s.opts.Accounts.ValidateAccounts(ctx, header.OrganizationID, lines); err != nil {
			return Transaction{}, err
		}
	}

	now := s.now().UTC()
	date := header.TransactionDate
	if date.IsZero() {
		date = now
	}
	status := header.Status
	if status == "" {
		status = StatusPosted
	}
	txn := Transaction{
		ID:              uuid.New(),
		OrganizationID:  header.OrganizationID,
		TransactionType: strings.TrimSpace(header.TransactionType),
		TransactionCode: strings.TrimSpace(header.TransactionCode),
		TransactionDate: date,
		SmartCode:       header.SmartCode,
		TotalAmount:     header.TotalAmount,
		SourceEntityID:  header.SourceEntityID,
		TargetEntityID:  header.TargetEntityID,
		Status:          status,
		Metadata:        header.Metadata,
		CreatedBy:       sc.ActorID(),
		UpdatedBy:       sc.ActorID(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if txn.TransactionCode == "" {
		if s.opts.Numbers == nil {
			return Transaction{}, shared.Errorf(shared.KindValidation, "transaction code required")
		}
		num, err := s.opts.Numbers.GenerateDocumentNumber(ctx, txn.OrganizationID, txn.TransactionType, date)
		if err != nil {
			return Transaction{}, shared.WrapPersistence("ledger: document number", err)
		}
		txn.TransactionCode = num.TransactionCode
		txn.ReferenceNumber = num.ReferenceNumber
		txn.ExternalReference = num.ExternalReference
	}
	txn.Lines = buildLines(txn, lines)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertTransaction(ctx, txn); err != nil {
			return err
		}
		return tx.InsertLines(ctx, txn.Lines)
	})
	if err != nil {
		return Transaction{}, shared.WrapPersistence("ledger: post", err)
	}
	s.invalidate(ctx, txn.OrganizationID)
	sc.Audit(ctx, "transaction.post", "transaction:"+txn.ID.String(), shared.AuditAllowed, "", map[string]any{
		"transaction_type": txn.TransactionType,
		"transaction_code": txn.TransactionCode,
		"total_amount":     txn.TotalAmount,
		"status":           string(txn.Status),
	})
	return txn, nil
}

func buildLines(txn Transaction, inputs []LineInput) []Line {
	lines := make([]Line, len(inputs))
	for i, in := range inputs {
		lines[i] = Line{
			ID:             uuid.New(),
			OrganizationID: in.OrganizationID,
			TransactionID:  txn.ID,
			LineNumber:     in.LineNumber,
			LineType:       in.LineType,
			EntityID:       in.EntityID,
			Quantity:       in.Quantity,
			UnitAmount:     in.UnitAmount,
			LineAmount:     in.LineAmount,
			TaxAmount:      in.TaxAmount,
			SmartCode:      in.SmartCode,
			AccountCode:    in.AccountCode,
			LineData:       in.LineData,
		}
		if lines[i].Quantity == 0 {
			lines[i].Quantity = 1
		}
	}
	return lines
}

// AmendStatus moves a transaction along the allowed transitions. Reversal
// posts an offsetting transaction and marks the original reversed; amounts
// of the original are never changed.
func (s *Service) AmendStatus(ctx context.Context, orgID, transactionID uuid.UUID, next Status, patch map[string]any) (AmendResult, error) {
	resource := "transaction:" + transactionID.String()
	sc, err := rbac.Require(ctx, orgID, shared.PermTransactionsAmend, resource)
	if err != nil {
		return AmendResult{}, err
	}
	var result AmendResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockTransaction(ctx, orgID, transactionID)
		if err != nil {
			return err
		}
		if !CanTransition(current.Status, next) {
			return shared.Errorf(shared.KindInvalidStatusTransition, "cannot move %s from %s to %s", current.TransactionCode, current.Status, next)
		}
		now := s.now().UTC()
		current.Metadata = mergeMetadata(current.Metadata, patch)
		if next == StatusReversed {
			reversal := s.reversalOf(current, sc.ActorID(), now)
			if err := tx.InsertTransaction(ctx, reversal); err != nil {
				return err
			}
			if err := tx.InsertLines(ctx, reversal.Lines); err != nil {
				return err
			}
			current.Metadata["reversed_by"] = reversal.ID.String()
			result.Reversal = &reversal
		}
		current.Status = next
		current.UpdatedBy = sc.ActorID()
		current.UpdatedAt = now
		if err := tx.UpdateStatus(ctx, current); err != nil {
			return err
		}
		result.Transaction = current
		return nil
	})
	if err != nil {
		if shared.KindOf(err) == shared.KindInvalidStatusTransition {
			sc.Audit(ctx, "transaction.amend", resource, shared.AuditFailed, shared.Reason(err), nil)
		}
		return AmendResult{}, shared.WrapPersistence("ledger: amend status", err)
	}
	s.invalidate(ctx, orgID)
	meta := map[string]any{"status": string(next)}
	if result.Reversal != nil {
		meta["reversal_id"] = result.Reversal.ID.String()
	}
	sc.Audit(ctx, "transaction.amend", resource, shared.AuditAllowed, "", meta)
	return result, nil
}

func (s *Service) reversalOf(original Transaction, actor uuid.UUID, now time.Time) Transaction {
	rev := Transaction{
		ID:              uuid.New(),
		OrganizationID:  original.OrganizationID,
		TransactionType: original.TransactionType,
		TransactionCode: original.TransactionCode + "-REV",
		TransactionDate: now,
		SmartCode:       original.SmartCode,
		SourceEntityID:  original.SourceEntityID,
		TargetEntityID:  original.TargetEntityID,
		Status:          StatusPosted,
		ReferenceNumber: original.ReferenceNumber,
		Metadata:        map[string]any{"reversal_of": original.ID.String()},
		CreatedBy:       actor,
		UpdatedBy:       actor,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	rev.Lines = offsetLines(original.Lines)
	for i := range rev.Lines {
		rev.Lines[i].TransactionID = rev.ID
	}
	rev.TotalAmount = sumLines(rev.Lines)
	return rev
}

func mergeMetadata(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch)+1)
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// GetTransaction loads one transaction with its lines.
func (s *Service) GetTransaction(ctx context.Context, orgID, id uuid.UUID) (Transaction, error) {
	if _, err := rbac.Require(ctx, orgID, shared.PermTransactionsRead, "transaction:"+id.String()); err != nil {
		return Transaction{}, err
	}
	txn, err := s.repo.GetTransaction(ctx, orgID, id)
	return txn, shared.WrapPersistence("ledger: get", err)
}

// Reconcile compares assets against liabilities plus equity for the slice.
// Draft transactions are excluded; accounts with no activity count as zero.
func (s *Service) Reconcile(ctx context.Context, orgID uuid.UUID, filter ReconcileFilter) (ReconcileResult, error) {
	if _, err := rbac.Require(ctx, orgID, shared.PermReportsView, "ledger:reconcile"); err != nil {
		return ReconcileResult{}, err
	}
	key, err := s.opts.Cache.BuildKey(ctx, reconcileNamespace(orgID), filterKey(filter))
	if err != nil {
		s.warn("ledger: reconcile cache key", err)
		key = ""
	}
	var totals AccountTotals
	loader := func(ctx context.Context) (any, error) {
		return s.repo.AccountTotals(ctx, orgID, filter)
	}
	if key == "" {
		v, lerr := loader(ctx)
		if lerr == nil {
			totals = v.(AccountTotals)
		}
		err = lerr
	} else {
		err = s.opts.Cache.FetchJSON(ctx, key, &totals, loader)
	}
	if err != nil {
		return ReconcileResult{}, shared.WrapPersistence("ledger: reconcile", err)
	}
	result := Balance(orgID, totals, s.opts.Tolerance)
	if s.opts.Metrics != nil {
		s.opts.Metrics.Reconciled(result.Balanced)
	}
	return result, nil
}

// Balance derives the reconcile result from class totals.
func Balance(orgID uuid.UUID, totals AccountTotals, tolerance float64) ReconcileResult {
	earnings := totals.Revenue - totals.Expenses
	diff := totals.Assets - (totals.Liabilities + totals.Equity + earnings)
	diff = math.Round(diff*100) / 100
	return ReconcileResult{
		OrganizationID: orgID,
		Balanced:       math.Abs(diff) <= tolerance,
		Difference:     diff,
		Totals:         totals,
	}
}

// ReconcileMany reconciles several organizations concurrently. Each
// organization is authorized through its own security context.
func (s *Service) ReconcileMany(ctx context.Context, scopes []*rbac.Context, filter ReconcileFilter) ([]ReconcileResult, error) {
	for _, sc := range scopes {
		if sc == nil {
			return nil, shared.Errorf(shared.KindPermissionDenied, "missing security context for reconcile")
		}
	}
	results := make([]ReconcileResult, len(scopes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, sc := range scopes {
		i, sc := i, sc
		g.Go(func() error {
			res, err := s.Reconcile(rbac.WithSecurity(gctx, sc), sc.OrganizationID(), filter)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) invalidate(ctx context.Context, orgID uuid.UUID) {
	if err := s.opts.Cache.Bump(ctx, reconcileNamespace(orgID)); err != nil {
		s.warn("ledger: bump reconcile cache", err)
	}
}

func (s *Service) rejected(err error) {
	if s.opts.Metrics == nil {
		return
	}
	kind := string(shared.KindOf(err))
	if kind == "" {
		kind = "unknown"
	}
	s.opts.Metrics.PostingRejected(kind)
}

func (s *Service) warn(msg string, err error) {
	if s.logger != nil {
		s.logger.Warn(msg, slog.Any("error", err))
	}
}

func reconcileNamespace(orgID uuid.UUID) string {
	return "reconcile:" + orgID.String()
}

func filterKey(filter ReconcileFilter) string {
	raw, _ := json.Marshal(filter)
	sum := sha1.Sum(raw)
	return hex.EncodeToString(sum[:])
}
