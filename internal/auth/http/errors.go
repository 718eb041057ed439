package http

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/AlibekovAA/session-guard/internal/auth/service"
	"github.com/AlibekovAA/session-guard/internal/common/constants"
)

// writeError maps service failures onto responses. Invalid, expired and
// reused tokens all look the same to the client, and the session cookies
// are dropped so the client goes back to sign in.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var rateErr *service.RateLimitError
	switch {
	case service.IsReauthRequired(err):
		h.clearSessionCookies(w, r)
		h.errors.HandleError(w, r, service.ErrReauthRequired)
	case errors.As(err, &rateErr):
		setRetryAfter(w, rateErr.RetryAfter)
		h.errors.HandleError(w, r, err)
	case service.IsRetryable(err):
		setRetryAfter(w, constants.DefaultTransientRetryAfter)
		h.errors.HandleError(w, r, err)
	default:
		h.errors.HandleError(w, r, err)
	}
}

func setRetryAfter(w http.ResponseWriter, d time.Duration) {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
}
