package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coupondeck/entitlement-ledger/internal/domain"
	"github.com/coupondeck/entitlement-ledger/internal/usecase"
	"github.com/go-chi/chi/v5"
)

type IssueRequest struct {
	UserID       string   `json:"user_id"`
	OrderNumbers []string `json:"order_numbers"`
	AmountPaid   int64    `json:"amount_paid"`
}

type IssueResponse struct {
	RecordID string `json:"record_id"`
	Granted  int    `json:"entitlements_granted"`
}

type RedeemRequest struct {
	UserID string `json:"user_id"`
}

type RedeemResponse struct {
	UserID    string `json:"user_id"`
	Remaining int    `json:"remaining"`
}

type ResetRequest struct {
	UserID string `json:"user_id"`
}

type ResetResponse struct {
	UserID   string `json:"user_id"`
	Affected int64  `json:"affected"`
}

type BalanceResponse struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Handler struct {
	gateway usecase.EntitlementGateway
}

func NewHandler(gateway usecase.EntitlementGateway) *Handler {
	return &Handler{gateway: gateway}
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/entitlements", h.IssueEntitlement)
		r.Get("/entitlements/{userID}/balance", h.GetBalance)
		r.Post("/entitlements/redeem", h.Redeem)
		r.Post("/entitlements/reset", h.ResetToZero)
	})
}

func (h *Handler) IssueEntitlement(w http.ResponseWriter, r *http.Request) {
	var req IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}

	result, err := h.gateway.IssueEntitlement(r.Context(), req.UserID, req.OrderNumbers, req.AmountPaid)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, IssueResponse{
		RecordID: result.RecordID,
		Granted:  result.Granted,
	})
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	balance, err := h.gateway.GetBalance(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{UserID: userID, Balance: balance})
}

func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_FIELDS", "user_id is required")
		return
	}

	remaining, err := h.gateway.Redeem(r.Context(), req.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RedeemResponse{UserID: req.UserID, Remaining: remaining})
}

func (h *Handler) ResetToZero(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_FIELDS", "user_id is required")
		return
	}

	affected, err := h.gateway.ResetToZero(r.Context(), req.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// affected == 0 means the user had nothing to reset; still a success.
	writeJSON(w, http.StatusOK, ResetResponse{UserID: req.UserID, Affected: affected})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrMissingFields):
		writeError(w, http.StatusBadRequest, "MISSING_FIELDS", err.Error())
	case errors.Is(err, domain.ErrInsufficientPayment):
		writeError(w, http.StatusBadRequest, "INSUFFICIENT_PAYMENT", err.Error())
	case errors.Is(err, domain.ErrDuplicateOrder):
		writeError(w, http.StatusConflict, "DUPLICATE_ORDER", err.Error())
	case errors.Is(err, domain.ErrAlreadyIssuedToday):
		writeError(w, http.StatusConflict, "ALREADY_ISSUED_TODAY", err.Error())
	case errors.Is(err, domain.ErrInsufficientBalance):
		writeError(w, http.StatusConflict, "INSUFFICIENT_BALANCE", err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "storage temporarily unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
