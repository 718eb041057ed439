package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	authdomain "github.com/AlibekovAA/session-guard/internal/auth/domain"
	"github.com/AlibekovAA/session-guard/internal/auth/service"
	"github.com/AlibekovAA/session-guard/internal/common/constants"
	commonhttp "github.com/AlibekovAA/session-guard/internal/common/http"
	"github.com/AlibekovAA/session-guard/internal/common/jwtverify"
	"github.com/AlibekovAA/session-guard/internal/common/logger"
)

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type sessionsResponse struct {
	Sessions []authdomain.FamilySummary `json:"sessions"`
	Current  string                     `json:"current_family_id,omitempty"`
}

type revokeAllResponse struct {
	Revoked int64 `json:"revoked"`
}

type startSessionRequest struct {
	UserID     string `json:"user_id"`
	Role       string `json:"role"`
	DeviceInfo string `json:"device_info"`
	UserAgent  string `json:"user_agent"`
	IPAddress  string `json:"ip_address"`
}

type startSessionResponse struct {
	UserID           string    `json:"user_id"`
	FamilyID         string    `json:"family_id"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	secret := cookieValue(r, constants.RefreshCookieName)
	if secret == "" {
		commonhttp.WriteErrorEnvelope(w, http.StatusUnauthorized, commonhttp.CodeMissingRefreshToken, "missing refresh token", nil, commonhttp.TraceIDFromContext(r.Context()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.RequestTimeout)
	defer cancel()

	result, err := h.sessions.Refresh(ctx, secret, h.rotationContext(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.setSessionCookies(w, r, result.RefreshToken, result.FamilyID, result.RefreshExpiresAt)
	commonhttp.WriteJSON(w, http.StatusOK, tokenResponse{Token: result.AccessToken, ExpiresAt: result.AccessExpiresAt})
}

// rotationContext collects rate-limit hints. A family cookie that is not a
// uuid is ignored rather than rejected.
func (h *Handler) rotationContext(r *http.Request) service.RotationContext {
	rc := service.RotationContext{
		IPHash:    h.sessions.HashIP(commonhttp.GetClientIP(r)),
		UserAgent: r.UserAgent(),
	}
	if token, ok := commonhttp.BearerToken(r); ok {
		rc.UserIDHint = h.sessions.UserHint(token)
	}
	if familyID := cookieValue(r, constants.FamilyCookieName); commonhttp.ValidateUUID(familyID) == nil {
		rc.FamilyIDHint = familyID
	}
	return rc
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if secret := cookieValue(r, constants.RefreshCookieName); secret != "" {
		ctx, cancel := context.WithTimeout(r.Context(), h.cfg.RequestTimeout)
		defer cancel()

		if err := h.sessions.Logout(ctx, secret); err != nil {
			h.log.WithFields(r.Context(), logger.Fields{
				"action": "logout_failed",
			}).Errorf("logout revoke failed: %v", err)
			h.writeError(w, r, err)
			return
		}
	}

	h.clearSessionCookies(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	claims, _ := jwtverify.FromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.RequestTimeout)
	defer cancel()

	sessions, err := h.sessions.ListSessions(ctx, claims.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	commonhttp.WriteJSON(w, http.StatusOK, sessionsResponse{Sessions: sessions, Current: claims.FamilyID})
}

func (h *Handler) revokeSession(w http.ResponseWriter, r *http.Request) {
	claims, _ := jwtverify.FromContext(r.Context())
	familyID := mux.Vars(r)["familyID"]
	if err := commonhttp.ValidateUUID(familyID); err != nil {
		commonhttp.WriteErrorEnvelope(w, http.StatusBadRequest, commonhttp.CodeInvalidPath, "invalid session id", nil, commonhttp.TraceIDFromContext(r.Context()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.RequestTimeout)
	defer cancel()

	if err := h.sessions.RevokeSession(ctx, claims.UserID, familyID); err != nil {
		h.writeError(w, r, err)
		return
	}

	if familyID == claims.FamilyID {
		h.clearSessionCookies(w, r)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeAllSessions(w http.ResponseWriter, r *http.Request) {
	claims, _ := jwtverify.FromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.RequestTimeout)
	defer cancel()

	n, err := h.sessions.RevokeAllSessions(ctx, claims.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.clearSessionCookies(w, r)
	commonhttp.WriteJSON(w, http.StatusOK, revokeAllResponse{Revoked: n})
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := commonhttp.DecodeJSON(r, &req); err != nil {
		h.log.Warnf("start session failed: invalid json: %v", err)
		commonhttp.WriteErrorEnvelope(w, http.StatusBadRequest, commonhttp.CodeInvalidJSON, "invalid json", nil, commonhttp.TraceIDFromContext(r.Context()))
		return
	}

	if req.UserAgent == "" {
		req.UserAgent = r.UserAgent()
	}
	if req.IPAddress == "" {
		req.IPAddress = commonhttp.GetClientIP(r)
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.RequestTimeout)
	defer cancel()

	result, err := h.sessions.StartSession(ctx, service.StartSessionInput{
		UserID:     req.UserID,
		Role:       req.Role,
		DeviceInfo: req.DeviceInfo,
		UserAgent:  req.UserAgent,
		IPAddress:  req.IPAddress,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.setSessionCookies(w, r, result.RefreshToken, result.FamilyID, result.RefreshExpiresAt)
	commonhttp.WriteJSON(w, http.StatusCreated, startSessionResponse{
		UserID:           result.UserID,
		FamilyID:         result.FamilyID,
		AccessToken:      result.AccessToken,
		AccessExpiresAt:  result.AccessExpiresAt,
		RefreshExpiresAt: result.RefreshExpiresAt,
	})
}
