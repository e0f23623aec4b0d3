package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowmarket/internal/ledger"
)

func TestHTTPErrorMapping(t *testing.T) {
	cases := []struct {
		kind   ledger.Kind
		status int
	}{
		{ledger.KindNotFound, http.StatusNotFound},
		{ledger.KindDuplicateCode, http.StatusConflict},
		{ledger.KindDuplicateName, http.StatusConflict},
		{ledger.KindAlreadyOwned, http.StatusConflict},
		{ledger.KindHasClones, http.StatusConflict},
		{ledger.KindAlreadyLocked, http.StatusConflict},
		{ledger.KindPriceChanged, http.StatusConflict},
		{ledger.KindCodeTampered, http.StatusConflict},
		{ledger.KindUnlisted, http.StatusForbidden},
		{ledger.KindLocked, http.StatusForbidden},
		{ledger.KindNotSeller, http.StatusForbidden},
		{ledger.KindPaymentMismatch, http.StatusPaymentRequired},
		{ledger.KindUnexpectedPayment, http.StatusPaymentRequired},
		{ledger.KindInsufficientFunds, http.StatusPaymentRequired},
		{ledger.KindParentNotFound, http.StatusUnprocessableEntity},
		{ledger.KindTicketMismatch, http.StatusUnprocessableEntity},
		{ledger.KindInvalidPrice, http.StatusUnprocessableEntity},
	}

	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			err := httpError(ledger.ErrKind(tc.kind))
			he, ok := err.(*echo.HTTPError)
			require.True(t, ok)
			assert.Equal(t, tc.status, he.Code)
		})
	}

	t.Run("echo errors pass through", func(t *testing.T) {
		in := echo.NewHTTPError(http.StatusTeapot, "short and stout")
		assert.Equal(t, in, httpError(in))
	})
}

func TestProblemHandler(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/workflows/7", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	ProblemHandler(echo.NewHTTPError(http.StatusNotFound, "workflow 7 does not exist"), c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get(echo.HeaderContentType))

	var problem ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, http.StatusNotFound, problem.Status)
	assert.Equal(t, "workflow 7 does not exist", problem.Detail)
	assert.Equal(t, "/api/v1/workflows/7", problem.Instance)
}
