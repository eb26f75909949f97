package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"coffeefarm/middleware"
	"coffeefarm/utils"
)

// Handlers exposes the service under /api/auth.
type Handlers struct {
	Service *Service
	Logger  *zap.Logger
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (h *Handlers) writeSession(w http.ResponseWriter, sess Session, err error) {
	switch {
	case err == nil:
		utils.SendResponse(w, http.StatusOK, sess, "Sessão iniciada", nil)
	case errors.Is(err, ErrInvalidToken):
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
	case errors.Is(err, ErrNoVerifier):
		utils.RespondWithError(w, http.StatusNotImplemented, err.Error())
	default:
		h.Logger.Error("auth failed", zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Authentication failed")
	}
}

// Anonymous handles POST /api/auth/anonymous.
func (h *Handlers) Anonymous(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sess, err := h.Service.SignInAnonymously(r.Context())
	h.writeSession(w, sess, err)
}

// Token handles POST /api/auth/token. An empty body falls back to anonymous
// sign-in.
func (h *Handlers) Token(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req tokenRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
	}
	sess, err := h.Service.Bootstrap(r.Context(), req.Token)
	h.writeSession(w, sess, err)
}

// Refresh handles POST /api/auth/refresh.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sess, err := h.Service.Refresh(r.Context(), middleware.BearerToken(r))
	h.writeSession(w, sess, err)
}

// Logout handles POST /api/auth/logout.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	err := h.Service.Logout(r.Context(), middleware.BearerToken(r))
	switch {
	case err == nil:
		utils.SendResponse(w, http.StatusOK, nil, "Logged out", nil)
	case errors.Is(err, ErrInvalidToken):
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
	default:
		h.Logger.Error("logout failed", zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Logout failed")
	}
}

// Me handles GET /api/auth/me for an authenticated request.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	utils.SendResponse(w, http.StatusOK, map[string]string{
		"userId":    utils.GetUserIDFromRequest(r),
		"sessionId": utils.GetSessionIDFromRequest(r),
	}, "", nil)
}
