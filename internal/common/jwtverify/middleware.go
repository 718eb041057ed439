package jwtverify

import (
	"context"
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	commonhttp "github.com/AlibekovAA/session-guard/internal/common/http"
	"github.com/AlibekovAA/session-guard/internal/common/logger"
	"github.com/AlibekovAA/session-guard/internal/observability/metrics"
)

type Claims struct {
	UserID   string
	Role     string
	FamilyID string
	JTI      string
}

// TokenClaims is the registered claim set plus the session fields carried by
// access tokens.
type TokenClaims struct {
	Role     string `json:"role,omitempty"`
	FamilyID string `json:"fid,omitempty"`
	jwt.RegisteredClaims
}

type contextKey string

const claimsKey contextKey = "jwt_claims"

func Middleware(secret string, log *logger.Logger) func(next http.Handler) http.Handler {
	secretBytes := []byte(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := commonhttp.TraceIDFromContext(r.Context())

			tokenString, ok := commonhttp.BearerToken(r)
			if !ok {
				log.WithFields(r.Context(), logger.Fields{
					"path":   r.URL.Path,
					"action": "jwt_missing",
				}).Warn("jwt auth failed: missing or invalid authorization header")
				commonhttp.WriteErrorEnvelope(w, http.StatusUnauthorized, commonhttp.CodeMissingAuthorization, "missing or invalid authorization", nil, traceID)
				return
			}

			claims, err := ParseToken(tokenString, secretBytes)
			if err != nil {
				log.WithFields(r.Context(), logger.Fields{
					"path":   r.URL.Path,
					"action": "jwt_invalid",
				}).Warnf("jwt auth failed: %v", err)
				commonhttp.WriteErrorEnvelope(w, http.StatusUnauthorized, commonhttp.CodeInvalidToken, "invalid token", nil, traceID)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func FromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(Claims)
	return claims, ok
}

// ParseToken verifies signature and expiry.
func ParseToken(tokenString string, secret []byte) (Claims, error) {
	metrics.JWTValidationsTotal.Inc()
	claims, err := parse(tokenString, secret)
	if err != nil {
		metrics.JWTValidationsFailed.Inc()
	}
	return claims, err
}

// ParseHint verifies only the signature, so an access token that has already
// expired still names its user. The result may be used as a rate-limit key
// and for nothing else.
func ParseHint(tokenString string, secret []byte) (Claims, error) {
	return parse(tokenString, secret, jwt.WithoutClaimsValidation())
}

func parse(tokenString string, secret []byte, opts ...jwt.ParserOption) (Claims, error) {
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	var tc TokenClaims
	parsed, err := jwt.ParseWithClaims(tokenString, &tc, func(token *jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		return Claims{}, err
	}
	if !parsed.Valid {
		return Claims{}, errors.New("token is not valid")
	}

	if tc.Subject == "" {
		return Claims{}, errors.New("missing sub claim")
	}

	return Claims{
		UserID:   tc.Subject,
		Role:     tc.Role,
		FamilyID: tc.FamilyID,
		JTI:      tc.ID,
	}, nil
}
