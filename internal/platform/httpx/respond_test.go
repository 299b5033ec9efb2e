package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
)

func TestRespondErrorUsesKind(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, shared.Errorf(shared.KindTotalMismatch, "header total 3 differs from line sum 105"))

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "TotalMismatch", body.Type)
	assert.Equal(t, "header total 3 differs from line sum 105", body.Detail)
}

func TestRespondErrorUnclassified(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestStatusFor(t *testing.T) {
	cases := map[shared.ErrorKind]int{
		shared.KindDuplicateCode:                 http.StatusConflict,
		shared.KindCrossTenantEdge:               http.StatusForbidden,
		shared.KindOrganizationBoundaryViolation: http.StatusForbidden,
		shared.KindSessionExpired:                http.StatusUnauthorized,
		shared.KindUnknownEntity:                 http.StatusNotFound,
		shared.KindPersistence:                   http.StatusServiceUnavailable,
	}
	for kind, want := range cases {
		assert.Equal(t, want, StatusFor(kind), kind)
	}
}
