package http

import (
	"net/http"
	"time"

	"github.com/AlibekovAA/session-guard/internal/common/constants"
)

func (h *Handler) setSessionCookies(w http.ResponseWriter, r *http.Request, secret, familyID string, expiresAt time.Time) {
	if secret == "" {
		return
	}
	http.SetCookie(w, h.cookie(r, constants.RefreshCookieName, secret, expiresAt))
	http.SetCookie(w, h.cookie(r, constants.FamilyCookieName, familyID, expiresAt))
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter, r *http.Request) {
	for _, name := range []string{constants.RefreshCookieName, constants.FamilyCookieName} {
		c := h.cookie(r, name, "", time.Unix(0, 0))
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

func (h *Handler) cookie(r *http.Request, name, value string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     constants.RefreshCookiePath,
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   h.cfg.CookieSecure || r.TLS != nil,
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
