// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
)

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// RespondError maps a core error to a problem response. The error kind
// becomes the problem type so clients can branch on it.
func RespondError(w http.ResponseWriter, err error) {
	kind := shared.KindOf(err)
	status := StatusFor(kind)
	title := http.StatusText(status)
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetail{
		Type:   string(kind),
		Title:  title,
		Status: status,
		Detail: shared.Reason(err),
	})
}

// StatusFor returns the HTTP status for an error kind.
func StatusFor(kind shared.ErrorKind) int {
	switch kind {
	case shared.KindMalformedCode, shared.KindInvalidFieldType, shared.KindUnbalancedLines,
		shared.KindTotalMismatch, shared.KindInvalidAccount, shared.KindValidation:
		return http.StatusUnprocessableEntity
	case shared.KindDuplicateCode, shared.KindEntityInUse, shared.KindInvalidStatusTransition:
		return http.StatusConflict
	case shared.KindUnknownEntity, shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindPermissionDenied, shared.KindOrganizationBoundaryViolation, shared.KindCrossTenantEdge:
		return http.StatusForbidden
	case shared.KindSessionExpired:
		return http.StatusUnauthorized
	case shared.KindPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
