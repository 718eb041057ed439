package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AlibekovAA/session-guard/internal/common/constants"
)

var (
	ErrMissingRequiredEnv = errors.New("missing required environment variable")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

const (
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"

	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"

	RaceLossRevokeFamily = "revoke_family"
	RaceLossReject       = "reject"
)

type AuthConfig struct {
	HTTPPort       string        `validate:"required,numeric"`
	RequestTimeout time.Duration `validate:"gt=0"`

	StoreBackend string `validate:"oneof=postgres memory"`
	DatabaseURL  string `validate:"required_if=StoreBackend postgres"`

	JWTSecret      string        `validate:"required,min=32"`
	AccessTokenTTL time.Duration `validate:"gt=0"`

	RefreshTokenTTL    time.Duration `validate:"gt=0"`
	MaxActiveFamilies  int           `validate:"min=1"`
	TokenHashPepper    string        `validate:"max=64"`
	RaceLossPolicy     string        `validate:"oneof=revoke_family reject"`
	TokenRetention     time.Duration `validate:"gt=0"`
	CleanupInterval    time.Duration `validate:"gt=0"`
	RotationRateLimit  int           `validate:"min=1"`
	RotationRateWindow time.Duration `validate:"gt=0"`
	RateLimitBackend   string        `validate:"oneof=memory redis"`
	RedisURL           string        `validate:"required_if=RateLimitBackend redis"`

	InternalAPIKey  string `validate:"omitempty,min=16"`
	AuditLogDir     string
	AuditBufferSize int `validate:"min=1"`
	CookieSecure    bool

	CircuitBreakerThreshold int32         `validate:"min=1"`
	CircuitBreakerTimeout   time.Duration `validate:"gt=0"`
	CircuitBreakerReset     time.Duration `validate:"gt=0"`
}

func LoadAuthConfig() (AuthConfig, error) {
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return AuthConfig{}, err
	}

	cfg := AuthConfig{
		HTTPPort:       getEnv("AUTH_HTTP_PORT", constants.DefaultAuthHTTPPort),
		RequestTimeout: getDurationEnv("AUTH_REQUEST_TIMEOUT", constants.DefaultAuthRequestTimeout),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", StoreBackendPostgres)),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		JWTSecret:      jwtSecret,
		AccessTokenTTL: getDurationEnv("ACCESS_TOKEN_TTL", constants.DefaultAccessTokenTTL),

		RefreshTokenTTL:    getDurationEnv("REFRESH_TOKEN_TTL", constants.DefaultRefreshTokenTTL),
		MaxActiveFamilies:  getIntEnv("MAX_ACTIVE_FAMILIES", constants.DefaultMaxActiveFamilies),
		TokenHashPepper:    getEnv("TOKEN_HASH_PEPPER", ""),
		RaceLossPolicy:     strings.ToLower(getEnv("RACE_LOSS_POLICY", RaceLossRevokeFamily)),
		TokenRetention:     getDurationEnv("TOKEN_RETENTION", constants.DefaultTokenRetention),
		CleanupInterval:    getDurationEnv("CLEANUP_INTERVAL", constants.DefaultCleanupInterval),
		RotationRateLimit:  getIntEnv("ROTATION_RATE_LIMIT", constants.DefaultRotationRateLimit),
		RotationRateWindow: getDurationEnv("ROTATION_RATE_WINDOW", constants.DefaultRotationRateWindow),
		RateLimitBackend:   strings.ToLower(getEnv("RATE_LIMIT_BACKEND", RateLimitBackendMemory)),
		RedisURL:           getEnv("REDIS_URL", ""),

		InternalAPIKey:  getEnv("INTERNAL_API_KEY", ""),
		AuditLogDir:     getEnv("AUDIT_LOG_DIR", ""),
		AuditBufferSize: getIntEnv("AUDIT_BUFFER_SIZE", constants.DefaultAuditBufferSize),
		CookieSecure:    getBoolEnv("COOKIE_SECURE", true),

		CircuitBreakerThreshold: int32(getIntEnv("CIRCUIT_BREAKER_THRESHOLD", constants.DefaultCircuitBreakerThreshold)),
		CircuitBreakerTimeout:   getDurationEnv("CIRCUIT_BREAKER_TIMEOUT", constants.DefaultCircuitBreakerTimeout),
		CircuitBreakerReset:     getDurationEnv("CIRCUIT_BREAKER_RESET", constants.DefaultCircuitBreakerReset),
	}

	if err := cfg.Validate(); err != nil {
		return AuthConfig{}, err
	}

	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c AuthConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			parts := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				parts = append(parts, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(parts, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func mustEnv(key string) (string, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingRequiredEnv, key)
	}
	return v, nil
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getIntEnv(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getBoolEnv(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
