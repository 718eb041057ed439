package service

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	commonerrors "github.com/AlibekovAA/session-guard/internal/common/errors"
)

var (
	ErrInvalidToken = commonerrors.NewDomainError(
		"INVALID_TOKEN",
		commonerrors.CategoryUnauthorized,
		http.StatusUnauthorized,
		"refresh token is not valid",
	)

	ErrExpiredToken = commonerrors.NewDomainError(
		"EXPIRED_TOKEN",
		commonerrors.CategoryUnauthorized,
		http.StatusUnauthorized,
		"refresh token expired",
	)

	ErrTokenReuseDetected = commonerrors.NewDomainError(
		"TOKEN_REUSE_DETECTED",
		commonerrors.CategoryAuth,
		http.StatusUnauthorized,
		"refresh token reuse detected",
	)

	ErrFamilyLimitExceeded = commonerrors.NewDomainError(
		"FAMILY_LIMIT_EXCEEDED",
		commonerrors.CategoryConflict,
		http.StatusConflict,
		"too many active sessions",
	)

	ErrRateLimited = commonerrors.NewDomainError(
		"RATE_LIMITED",
		commonerrors.CategoryRateLimit,
		http.StatusTooManyRequests,
		"too many refresh attempts",
	)

	ErrTransientStorage = commonerrors.NewDomainError(
		"TRANSIENT_STORAGE_ERROR",
		commonerrors.CategoryExternal,
		http.StatusServiceUnavailable,
		"session storage temporarily unavailable",
	)

	ErrSessionNotFound = commonerrors.NewDomainError(
		"SESSION_NOT_FOUND",
		commonerrors.CategoryNotFound,
		http.StatusNotFound,
		"session not found",
	)

	ErrValidation = commonerrors.NewDomainError(
		"VALIDATION_FAILED",
		commonerrors.CategoryValidation,
		http.StatusBadRequest,
		"validation failed",
	)

	// ErrReauthRequired is what clients see for any of the security
	// failures grouped by IsReauthRequired.
	ErrReauthRequired = commonerrors.NewDomainError(
		"REAUTH_REQUIRED",
		commonerrors.CategoryUnauthorized,
		http.StatusUnauthorized,
		"please sign in again",
	)
)

// RateLimitError is returned when the rotation limiter denies an attempt.
// It matches ErrRateLimited with errors.Is.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited.Message(), e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// IsReauthRequired reports the failures after which the client must sign in
// again: the presented credential is unknown, expired or was reused.
func IsReauthRequired(err error) bool {
	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrExpiredToken) ||
		errors.Is(err, ErrTokenReuseDetected)
}

// IsRetryable reports whether the caller may retry the same request with
// bounded backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientStorage)
}

func transientError(err error) error {
	return ErrTransientStorage.WithCause(err)
}
