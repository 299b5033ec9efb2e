package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Audit results.
const (
	AuditAllowed = "allowed"
	AuditDenied  = "denied"
	AuditFailed  = "failed"
)

// AuditTransactionType marks audit rows inside universal_transactions.
const AuditTransactionType = "audit_event"

// AuditLog is one append-only audit event.
type AuditLog struct {
	At             time.Time      `json:"timestamp"`
	ActorID        uuid.UUID      `json:"actor"`
	OrganizationID uuid.UUID      `json:"organization"`
	Action         string         `json:"action"`
	Resource       string         `json:"resource"`
	Result         string         `json:"result"`
	Reason         string         `json:"reason,omitempty"`
	Meta           map[string]any `json:"meta,omitempty"`
}

// AuditLogger is the durable audit sink. Events are stored as
// universal_transactions rows of type audit_event so no extra table is needed.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.OrganizationID == uuid.Nil {
		return errors.New("audit log requires action/organization")
	}
	if log.At.IsZero() {
		log.At = time.Now().UTC()
	}
	metaJSON, err := json.Marshal(log)
	if err != nil {
		return err
	}
	code := fmt.Sprintf("AUD-%s-%s", log.At.Format("20060102150405"), strings.ToUpper(uuid.NewString()[:8]))
	_, err = l.pool.Exec(ctx, `INSERT INTO universal_transactions
(id, organization_id, transaction_type, transaction_code, transaction_date, smart_code, total_amount, source_entity_id, transaction_status, metadata, created_by)
VALUES ($1, $2, $3, $4, $5, $6, 0, $7, 'posted', $8, $7)`,
		uuid.New(), log.OrganizationID, AuditTransactionType, code, log.At, auditSmartCode(log.Result), nullUUID(log.ActorID), metaJSON)
	return WrapPersistence("audit: insert", err)
}

func auditSmartCode(result string) string {
	switch result {
	case AuditDenied:
		return "HERA.SYS.AUDIT.EVENT.DENIED.V1"
	case AuditFailed:
		return "HERA.SYS.AUDIT.EVENT.FAILED.V1"
	default:
		return "HERA.SYS.AUDIT.EVENT.ALLOWED.V1"
	}
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}
