package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"warehouse-billing/internal/middleware"
	"warehouse-billing/internal/model"
	"warehouse-billing/internal/service"
	"warehouse-billing/pkg/apperror"
	"warehouse-billing/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubInvoices struct {
	service.InvoiceService
	err      error
	gotActor uuid.UUID
	gotReq   service.GenerateInvoiceRequest
}

func (s *stubInvoices) Generate(_ context.Context, req service.GenerateInvoiceRequest, actorID uuid.UUID) (*model.Invoice, error) {
	s.gotActor = actorID
	s.gotReq = req
	if s.err != nil {
		return nil, s.err
	}
	inv := &model.Invoice{
		InvoiceNo:    "KRW-X-202602-0001",
		BillingMonth: req.Month,
		Currency:     "KRW",
		Status:       model.InvoiceDraft,
		InvoiceDate:  time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC),
		Subtotal:     decimal.NewFromInt(4800),
		VAT:          decimal.NewFromInt(300),
		Total:        decimal.NewFromInt(5100),
	}
	inv.ID = uuid.New()
	return inv, nil
}

func setup(t *testing.T, stub *stubInvoices) (*gin.Engine, *middleware.Auth) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	auth, err := middleware.NewAuth("test-secret", false)
	require.NoError(t, err)
	r := gin.New()
	NewInvoiceHandler(stub, auth).RegisterRoutes(r.Group(""))
	return r, auth
}

func post(t *testing.T, r http.Handler, auth *middleware.Auth, role, body string) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	token, err := auth.IssueToken(uuid.NewString(), role, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/invoices/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestGenerateInvoice_Created(t *testing.T) {
	stub := &stubInvoices{}
	r, auth := setup(t, stub)

	w, resp := post(t, r, auth, middleware.RoleManager, `{"client_id":"c","month":"2026-02"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "2026-02", stub.gotReq.Month)
	assert.NotEqual(t, uuid.Nil, stub.gotActor)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "5100", data["total"])
	assert.Equal(t, "KRW-X-202602-0001", data["invoice_no"])
}

func TestGenerateInvoice_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{apperror.Precondition(apperror.CodeNoPendingEvents, "nothing to bill"), http.StatusUnprocessableEntity, apperror.CodeNoPendingEvents},
		{apperror.Precondition(apperror.CodeFXNotFound, "no rate"), http.StatusUnprocessableEntity, apperror.CodeFXNotFound},
		{apperror.InvalidState(apperror.CodeInvoiceIssued, "issued"), http.StatusConflict, apperror.CodeInvoiceIssued},
		{apperror.Conflict(apperror.CodeRetryableConflict, "retry"), http.StatusConflict, apperror.CodeRetryableConflict},
		{apperror.Validation("bad month"), http.StatusBadRequest, apperror.CodeValidation},
	}
	for _, tc := range cases {
		r, auth := setup(t, &stubInvoices{err: tc.err})
		w, resp := post(t, r, auth, middleware.RoleAdmin, `{"client_id":"c","month":"2026-02"}`)
		assert.Equal(t, tc.status, w.Code, tc.code)
		assert.Equal(t, tc.code, resp.Code)
		assert.Equal(t, "error", resp.Status)
	}
}

func TestGenerateInvoice_RejectsBadInput(t *testing.T) {
	r, auth := setup(t, &stubInvoices{})

	w, _ := post(t, r, auth, middleware.RoleAdmin, `{"client_id":"c"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = post(t, r, auth, middleware.RoleStaff, `{"client_id":"c","month":"2026-02"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
