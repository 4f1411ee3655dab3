package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"

	"github.com/buildledger/buildledger/internal/shared"
)

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) ProblemDetail {
	t.Helper()
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var pd ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pd))
	return pd
}

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
		title  string
	}{
		{fmt.Errorf("%w: request 9", shared.ErrNotFound), http.StatusNotFound, "Not Found"},
		{fmt.Errorf("%w: quantity must be positive", shared.ErrValidation), http.StatusBadRequest, "Validation Failed"},
		{fmt.Errorf("%w: role viewer cannot review bills", shared.ErrForbidden), http.StatusForbidden, "Forbidden"},
		{fmt.Errorf("%w: bill 3 is not pending", shared.ErrInvalidState), http.StatusConflict, "Invalid State"},
		{fmt.Errorf("%w: request 1 already has a live bill", shared.ErrConflict), http.StatusConflict, "Conflict"},
		{shared.ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
		require.Equal(t, tc.status, rec.Code, tc.title)

		pd := decodeProblem(t, rec)
		require.Equal(t, tc.title, pd.Title)
		require.Equal(t, tc.status, pd.Status)
		require.Equal(t, tc.err.Error(), pd.Detail)

		slug := strings.ReplaceAll(strings.ToLower(tc.title), " ", "-")
		require.Equal(t, "https://buildledger.dev/problems/"+slug, pd.Type)
	}
}

func TestRespondErrorHidesUnknownErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: deadlock detected"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	pd := decodeProblem(t, rec)
	require.Equal(t, "Internal Error", pd.Title)
	require.Equal(t, "internal error", pd.Detail)
	require.NotContains(t, pd.Detail, "deadlock")
}

func TestProblemStampsRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "req-42"))

	rec := httptest.NewRecorder()
	Problem(rec, req, http.StatusBadRequest, "Validation Failed", "invalid siteId filter")

	pd := decodeProblem(t, rec)
	require.Equal(t, "req-42", pd.RequestID)

	// Without a request the field stays empty instead of panicking.
	rec = httptest.NewRecorder()
	Problem(rec, nil, http.StatusBadRequest, "Validation Failed", "invalid siteId filter")
	pd = decodeProblem(t, rec)
	require.Empty(t, pd.RequestID)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		SiteID int64 `json:"siteId"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"siteId":1,"sietId":2}`))
	require.Error(t, DecodeJSON(req, &target))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"siteId":1}`))
	require.NoError(t, DecodeJSON(req, &target))
	require.Equal(t, int64(1), target.SiteID)
}
