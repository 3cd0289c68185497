package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coupondeck/entitlement-ledger/internal/domain"
	"github.com/go-chi/chi/v5"
)

type stubGateway struct {
	issueFn   func(ctx context.Context, userID string, orderNumbers []string, amountPaid int64) (*domain.IssueResult, error)
	balanceFn func(ctx context.Context, userID string) (int64, error)
	redeemFn  func(ctx context.Context, userID string) (int, error)
	resetFn   func(ctx context.Context, userID string) (int64, error)
}

func (s *stubGateway) IssueEntitlement(ctx context.Context, userID string, orderNumbers []string, amountPaid int64) (*domain.IssueResult, error) {
	return s.issueFn(ctx, userID, orderNumbers, amountPaid)
}

func (s *stubGateway) GetBalance(ctx context.Context, userID string) (int64, error) {
	return s.balanceFn(ctx, userID)
}

func (s *stubGateway) Redeem(ctx context.Context, userID string) (int, error) {
	return s.redeemFn(ctx, userID)
}

func (s *stubGateway) ResetToZero(ctx context.Context, userID string) (int64, error) {
	return s.resetFn(ctx, userID)
}

func newTestRouter(gw *stubGateway) *chi.Mux {
	r := chi.NewRouter()
	NewHandler(gw).Routes(r)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIssueEntitlement_Created(t *testing.T) {
	gw := &stubGateway{
		issueFn: func(ctx context.Context, userID string, orderNumbers []string, amountPaid int64) (*domain.IssueResult, error) {
			if userID != "user1" || len(orderNumbers) != 2 || amountPaid != 250000 {
				t.Fatalf("unexpected request: %s %v %d", userID, orderNumbers, amountPaid)
			}
			return &domain.IssueResult{RecordID: "rec1", Granted: 2}, nil
		},
	}

	w := doJSON(t, newTestRouter(gw), http.MethodPost, "/api/entitlements", IssueRequest{
		UserID:       "user1",
		OrderNumbers: []string{"ord-1", "ord-2"},
		AmountPaid:   250000,
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp IssueResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RecordID != "rec1" || resp.Granted != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestIssueEntitlement_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"missing fields", domain.ErrMissingFields, http.StatusBadRequest, "MISSING_FIELDS"},
		{"insufficient payment", domain.ErrInsufficientPayment, http.StatusBadRequest, "INSUFFICIENT_PAYMENT"},
		{"duplicate order", domain.ErrDuplicateOrder, http.StatusConflict, "DUPLICATE_ORDER"},
		{"already issued today", domain.ErrAlreadyIssuedToday, http.StatusConflict, "ALREADY_ISSUED_TODAY"},
		{"store unavailable", domain.ErrStoreUnavailable, http.StatusServiceUnavailable, "STORE_UNAVAILABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &stubGateway{
				issueFn: func(ctx context.Context, userID string, orderNumbers []string, amountPaid int64) (*domain.IssueResult, error) {
					return nil, tt.err
				},
			}

			w := doJSON(t, newTestRouter(gw), http.MethodPost, "/api/entitlements", IssueRequest{
				UserID:       "user1",
				OrderNumbers: []string{"ord-1"},
				AmountPaid:   250000,
			})

			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, w.Code)
			}
			var resp errorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Code != tt.wantCode {
				t.Fatalf("expected code %s, got %s", tt.wantCode, resp.Code)
			}
		})
	}
}

func TestIssueEntitlement_InvalidBody(t *testing.T) {
	gw := &stubGateway{}
	req := httptest.NewRequest(http.MethodPost, "/api/entitlements", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	newTestRouter(gw).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetBalance_OK(t *testing.T) {
	gw := &stubGateway{
		balanceFn: func(ctx context.Context, userID string) (int64, error) {
			if userID != "user1" {
				t.Fatalf("unexpected user id %s", userID)
			}
			return 3, nil
		},
	}

	w := doJSON(t, newTestRouter(gw), http.MethodGet, "/api/entitlements/user1/balance", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp BalanceResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.UserID != "user1" || resp.Balance != 3 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestGetBalance_UnknownUserIsZero(t *testing.T) {
	gw := &stubGateway{
		balanceFn: func(ctx context.Context, userID string) (int64, error) {
			return 0, nil
		},
	}

	w := doJSON(t, newTestRouter(gw), http.MethodGet, "/api/entitlements/nonexistent/balance", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for unknown user, got %d", w.Code)
	}
	var resp BalanceResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Balance != 0 {
		t.Fatalf("expected balance 0, got %d", resp.Balance)
	}
}

func TestRedeem_OK(t *testing.T) {
	gw := &stubGateway{
		redeemFn: func(ctx context.Context, userID string) (int, error) {
			return 1, nil
		},
	}

	w := doJSON(t, newTestRouter(gw), http.MethodPost, "/api/entitlements/redeem", RedeemRequest{UserID: "user1"})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp RedeemResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Remaining != 1 {
		t.Fatalf("expected remaining 1, got %d", resp.Remaining)
	}
}

func TestRedeem_InsufficientBalance(t *testing.T) {
	gw := &stubGateway{
		redeemFn: func(ctx context.Context, userID string) (int, error) {
			return 0, domain.ErrInsufficientBalance
		},
	}

	w := doJSON(t, newTestRouter(gw), http.MethodPost, "/api/entitlements/redeem", RedeemRequest{UserID: "user1"})

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Code != "INSUFFICIENT_BALANCE" {
		t.Fatalf("expected INSUFFICIENT_BALANCE, got %s", resp.Code)
	}
}

func TestRedeem_MissingUserID(t *testing.T) {
	gw := &stubGateway{}
	w := doJSON(t, newTestRouter(gw), http.MethodPost, "/api/entitlements/redeem", RedeemRequest{})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestResetToZero_OK(t *testing.T) {
	gw := &stubGateway{
		resetFn: func(ctx context.Context, userID string) (int64, error) {
			return 2, nil
		},
	}

	w := doJSON(t, newTestRouter(gw), http.MethodPost, "/api/entitlements/reset", ResetRequest{UserID: "user1"})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp ResetResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Affected != 2 {
		t.Fatalf("expected 2 affected, got %d", resp.Affected)
	}
}

func TestResetToZero_NothingToReset(t *testing.T) {
	gw := &stubGateway{
		resetFn: func(ctx context.Context, userID string) (int64, error) {
			return 0, nil
		},
	}

	w := doJSON(t, newTestRouter(gw), http.MethodPost, "/api/entitlements/reset", ResetRequest{UserID: "nonexistent"})

	// An unknown user is a no-op, not an error.
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp ResetResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Affected != 0 {
		t.Fatalf("expected 0 affected, got %d", resp.Affected)
	}
}
