package account

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-devicekey-go/internal/metrics"
)

// maximum accepted request body
const maxBodyBytes = 64 << 10

// Handler exposes HTTP endpoints for register / login / verify-token.
type Handler struct {
	svc     *AccountService
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

func NewHandler(svc *AccountService, logger *zap.SugaredLogger, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, logger: logger, metrics: m}
}

// RegisterRequest request body for register endpoint.
type RegisterRequest struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	ClientInfo string `json:"clientInfo"`
}

type RegisterResponse struct {
	Status    string `json:"status"`
	DeviceKey string `json:"deviceKey"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, "register", &req) {
		return
	}
	res, err := h.svc.Register(r.Context(), RegisterInput(req))
	if err != nil {
		h.fail(w, "register", err)
		return
	}
	h.metrics.Observe("register", "ok")
	h.writeJSON(w, http.StatusOK, RegisterResponse{Status: "ok", DeviceKey: res.DeviceKey})
}

// LoginRequest login payload.
type LoginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	ClientInfo string `json:"clientInfo"`
	DeviceID   string `json:"deviceId,omitempty"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, "login", &req) {
		return
	}
	t, err := h.svc.Login(r.Context(), LoginInput(req))
	if err != nil {
		h.fail(w, "login", err)
		return
	}
	h.metrics.Observe("login", "ok")
	h.writeJSON(w, http.StatusOK, LoginResponse{Token: t.Value, ExpiresAt: t.ExpiresAt.UnixMilli()})
}

// VerifyRequest verify-token payload.
type VerifyRequest struct {
	Username   string `json:"username"`
	Token      string `json:"token"`
	ClientInfo string `json:"clientInfo"`
	DeviceID   string `json:"deviceId,omitempty"`
}

type VerifyResponse struct {
	Status    string `json:"status"`
	Assertion string `json:"assertion,omitempty"`
}

func (h *Handler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !h.decode(w, r, "verify", &req) {
		return
	}
	res, err := h.svc.VerifyToken(r.Context(), VerifyInput(req))
	if err != nil {
		h.fail(w, "verify", err)
		return
	}
	h.metrics.Observe("verify", "ok")
	h.writeJSON(w, http.StatusOK, VerifyResponse{Status: "ok", Assertion: res.Assertion})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, op string, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.logger.Debugw("invalid payload", "op", op, "err", err)
		h.metrics.Observe(op, "bad_request")
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return false
	}
	return true
}

// fail maps service errors to status codes. Internal failures are logged by
// the service and stay opaque here.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status, msg, outcome := http.StatusInternalServerError, "internal error", "internal"
	switch {
	case errors.Is(err, ErrInternal):
	case errors.Is(err, ErrMissingFields):
		status, msg, outcome = http.StatusBadRequest, "Missing fields", "missing_fields"
	case errors.Is(err, ErrInvalidInput):
		status, msg, outcome = http.StatusBadRequest, "Password too long", "invalid_input"
	case errors.Is(err, ErrAlreadyExists):
		status, msg, outcome = http.StatusBadRequest, "User exists", "already_exists"
	case errors.Is(err, ErrNotFound):
		status, msg, outcome = http.StatusBadRequest, "User not found", "not_found"
	case errors.Is(err, ErrWrongPassword):
		status, msg, outcome = http.StatusUnauthorized, "Wrong password", "wrong_password"
	case errors.Is(err, ErrInvalidDevice):
		status, msg, outcome = http.StatusUnauthorized, "Invalid device", "invalid_device"
	case errors.Is(err, ErrTokenInvalid):
		status, msg, outcome = http.StatusUnauthorized, "Token invalid or expired", "token_invalid"
	default:
		h.logger.Warnw("unmapped error", "op", op, "err", err)
	}
	h.metrics.Observe(op, outcome)
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
