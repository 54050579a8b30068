package http

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"saldopay/internal/model"
	"saldopay/internal/money"
	"saldopay/internal/repository"
	"saldopay/internal/service"
)

// maxWebhookBody bounds provider payloads; PerfectPay notifications are
// well under this.
const maxWebhookBody = 1 << 20

type Handler struct {
	svc service.LedgerService
}

func NewHandler(svc service.LedgerService) *Handler {
	return &Handler{svc: svc}
}

// Register wires the routes. Method-qualified patterns make the mux answer
// 405 for wrong-method requests, which the webhook contract requires.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /signup", h.Signup)
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("GET /balance", h.Balance)
	mux.HandleFunc("POST /debit", h.Debit)
	mux.HandleFunc("POST /webhooks/perfectpay", h.Webhook)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Webhook handles PerfectPay sale notifications. Non-approved sales are
// acknowledged with 200 and zero mutation so the provider stops redelivering;
// storage failures answer 500 so it redelivers, which is safe because the
// credit path is idempotent on the sale code.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	var n model.CreditNotification
	if err := json.Unmarshal(body, &n); err != nil {
		slog.Error("webhook: malformed payload", "error", err)
		h.respondError(w, http.StatusBadRequest, "malformed payload")
		return
	}

	// Some provider payloads omit the sale code; the body digest still
	// dedupes exact redeliveries.
	if n.SaleCode == "" {
		sum := sha256.Sum256(body)
		n.SaleCode = hex.EncodeToString(sum[:])
	}

	res, err := h.svc.Credit(r.Context(), n)
	if err != nil {
		slog.Error("webhook: credit failed", "account_id", n.AccountID, "sale_code", n.SaleCode, "error", err)
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"message":  "webhook processed",
		"credited": res.Credited,
	})
}

func (h *Handler) Debit(w http.ResponseWriter, r *http.Request) {
	var req model.DebitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid json")
		return
	}
	res, err := h.svc.Debit(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"status":  res.Status,
		"balance": money.Format(res.NewBalanceCents),
	})
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		h.respondError(w, http.StatusBadRequest, "missing account_id")
		return
	}
	balance, err := h.svc.Balance(r.Context(), accountID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"balance": money.Format(balance),
	})
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var creds model.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid json")
		return
	}
	account, err := h.svc.Register(r.Context(), creds)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]any{
		"status":     "success",
		"account_id": account.ID,
		"balance":    money.Format(account.BalanceCents),
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var creds model.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid json")
		return
	}
	account, err := h.svc.Authenticate(r.Context(), creds)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"account_id": account.ID,
		"balance":    money.Format(account.BalanceCents),
	})
}

// respondServiceError maps the repository error taxonomy onto HTTP statuses.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrValidation):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrInsufficientFunds):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, repository.ErrConflict):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, repository.ErrDuplicateAccount):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, repository.ErrBadCredentials):
		h.respondError(w, http.StatusUnauthorized, err.Error())
	default:
		h.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"status": "error", "message": message})
}
