package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/honeynil/RecycleRewardsAdmin/internal/infrastructure/auth"
	"github.com/honeynil/RecycleRewardsAdmin/internal/models"
	"github.com/honeynil/RecycleRewardsAdmin/internal/notifications"
	service "github.com/honeynil/RecycleRewardsAdmin/internal/services"
	"github.com/honeynil/RecycleRewardsAdmin/internal/session"
	pkgerrors "github.com/honeynil/RecycleRewardsAdmin/pkg/errors"
)

type Sessions interface {
	SignIn(ctx context.Context, email, password string) (*session.Session, error)
	SignOut(ctx context.Context, s *session.Session) error
}

type Handler struct {
	service  service.RedemptionService
	sessions Sessions
	authz    session.Authorizer
	viewer   *notifications.Viewer
}

func NewHandler(s service.RedemptionService, sessions Sessions, authz session.Authorizer, viewer *notifications.Viewer) *Handler {
	return &Handler{service: s, sessions: sessions, authz: authz, viewer: viewer}
}

// requireAdmin gates handlers that do not go through the redemption
// service. It writes the error response itself.
func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request, operation string) bool {
	ok, err := h.authz.IsCurrentUserAdmin(r.Context(), auth.SessionFrom(r.Context()))
	if err != nil {
		slog.Error("authorization check failed", "operation", operation, "error", err)
		h.writeError(w, fmt.Errorf("authorization check failed: %w", err))
		return false
	}
	if !ok {
		slog.Warn("operation refused", "operation", operation)
		h.writeError(w, &pkgerrors.NotAuthorizedError{Operation: operation})
		return false
	}
	return true
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Current   string `json:"current_status,omitempty"`
	Available *int64 `json:"available_points,omitempty"`
	Required  *int64 `json:"required_points,omitempty"`
	// Retryable tells the client a replay of the same request may succeed.
	Retryable bool `json:"retryable"`
}

// errorStatus gives every error kind its own code so clients can tell them
// apart.
func errorStatus(err error) (int, errorResponse) {
	resp := errorResponse{Error: err.Error(), Retryable: pkgerrors.IsRetryable(err)}

	var (
		invalidState *pkgerrors.InvalidStateError
		insufficient *pkgerrors.InsufficientBalanceError
	)
	switch {
	case errors.As(err, &invalidState):
		resp.Code, resp.Current = "invalid_state", invalidState.Current
		return http.StatusConflict, resp
	case errors.As(err, &insufficient):
		resp.Code = "insufficient_balance"
		resp.Available, resp.Required = &insufficient.Available, &insufficient.Required
		return http.StatusUnprocessableEntity, resp
	case errors.Is(err, pkgerrors.ErrNotAuthorized):
		resp.Code = "not_authorized"
		return http.StatusForbidden, resp
	case errors.Is(err, pkgerrors.ErrRequestLocked):
		resp.Code = "request_locked"
		return http.StatusLocked, resp
	case errors.Is(err, pkgerrors.ErrRequestNotFound),
		errors.Is(err, pkgerrors.ErrBalanceNotFound),
		errors.Is(err, pkgerrors.ErrLedgerEntryNotFound):
		resp.Code = "not_found"
		return http.StatusNotFound, resp
	case errors.Is(err, pkgerrors.ErrInvalidTarget):
		resp.Code = "invalid_target"
		return http.StatusBadRequest, resp
	case errors.Is(err, pkgerrors.ErrInvalidInput):
		resp.Code = "invalid_input"
		return http.StatusBadRequest, resp
	case errors.Is(err, pkgerrors.ErrInvalidCredentials):
		resp.Code = "invalid_credentials"
		return http.StatusUnauthorized, resp
	case errors.Is(err, pkgerrors.ErrSessionExpired), errors.Is(err, pkgerrors.ErrInvalidToken):
		resp.Code = "session_expired"
		return http.StatusUnauthorized, resp
	case errors.Is(err, pkgerrors.ErrLedgerLookup):
		resp.Code = "ledger_lookup_failed"
		return http.StatusServiceUnavailable, resp
	case errors.Is(err, pkgerrors.ErrLedgerWrite):
		resp.Code = "ledger_write_failed"
		return http.StatusServiceUnavailable, resp
	}
	resp.Code = "internal"
	return http.StatusInternalServerError, resp
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, resp := errorStatus(err)
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/login", h.Login).Methods("POST")
}

func (h *Handler) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/logout", h.Logout).Methods("POST")
	r.HandleFunc("/redemptions", h.ListRedemptions).Methods("GET")
	r.HandleFunc("/redemptions/{id}", h.GetRedemption).Methods("GET")
	r.HandleFunc("/redemptions/{id}/approve", h.Approve).Methods("POST")
	r.HandleFunc("/redemptions/{id}/reject", h.Reject).Methods("POST")
	r.HandleFunc("/redemptions/{id}/reconcile", h.Reconcile).Methods("POST")
	r.HandleFunc("/balances/{user_id}", h.GetBalance).Methods("GET")
	r.HandleFunc("/ledger", h.GetLedger).Methods("GET")
	r.HandleFunc("/notifications", h.ListNotifications).Methods("GET")
	r.HandleFunc("/notifications/stream", h.NotificationStream).Methods("GET")
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s must be a uuid", pkgerrors.ErrInvalidInput, name)
	}
	return id, nil
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, fmt.Errorf("%w: %v", pkgerrors.ErrInvalidInput, err))
		return
	}

	s, err := h.sessions.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":      s.Token,
		"admin_id":   s.AdminID,
		"expires_at": s.ExpiresAt,
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.SignOut(r.Context(), auth.SessionFrom(r.Context())); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListRedemptions(w http.ResponseWriter, r *http.Request) {
	status := models.RedemptionStatus(r.URL.Query().Get("status"))
	out, err := h.service.List(r.Context(), auth.SessionFrom(r.Context()), status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetRedemption(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	req, err := h.service.Get(r.Context(), auth.SessionFrom(r.Context()), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type partialCommitResponse struct {
	Status               string                    `json:"status"`
	Error                string                    `json:"error"`
	Request              *models.RedemptionRequest `json:"request"`
	LedgerWritten        bool                      `json:"ledger_written"`
	ManualReconciliation bool                      `json:"manual_reconciliation"`
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, target models.RedemptionStatus) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	res, err := h.service.Transition(r.Context(), auth.SessionFrom(r.Context()), id, target)

	var partial *pkgerrors.PartialCommitError
	if errors.As(err, &partial) {
		resp := partialCommitResponse{
			Status:               "partial_commit",
			Error:                err.Error(),
			ManualReconciliation: true,
		}
		if res != nil {
			resp.Request = res.Request
		}
		writeJSON(w, http.StatusAccepted, resp)
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, models.RedemptionCompleted)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, models.RedemptionRejected)
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	entry, err := h.service.ReconcileLedger(r.Context(), auth.SessionFrom(r.Context()), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ledger_entry": entry})
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "user_id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	b, err := h.service.GetBalance(r.Context(), auth.SessionFrom(r.Context()), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	ref, err := uuid.Parse(r.URL.Query().Get("reference_id"))
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: reference_id must be a uuid", pkgerrors.ErrInvalidInput))
		return
	}
	entries, err := h.service.LedgerForRequest(r.Context(), auth.SessionFrom(r.Context()), ref)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r, "list notifications") {
		return
	}
	events, err := h.viewer.Fetch(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
