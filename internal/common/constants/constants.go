package constants

import "time"

const (
	RefreshTokenSize   = 32
	RefreshTokenHexLen = RefreshTokenSize * 2

	UserAgentMaxLength = 512

	DefaultMaxRequestSize = 1 << 20

	DBPoolMaxOpenConns    = 50
	DBPoolMinOpenConns    = 10
	DBPoolConnMaxLifetime = 5 * time.Minute
	DBPoolConnMaxIdleTime = 10 * time.Minute
	DBPoolHealthCheck     = 1 * time.Minute
	DBPoolConnectTimeout  = 15 * time.Second
	DBPoolMaxAttempts     = 10
	DBPoolRetryDelay      = 1 * time.Second
	DBPoolMetricsInterval = 30 * time.Second
	DBQueryTimeout        = 5 * time.Second

	ServerReadHeaderTimeout = 10 * time.Second
	ServerReadTimeout       = 30 * time.Second
	ServerWriteTimeout      = 30 * time.Second
	ServerIdleTimeout       = 120 * time.Second
	ServerWriteGrace        = 5 * time.Second
	ServerMaxHeaderBytes    = 1 << 16

	ShutdownTimeout = 30 * time.Second
	DrainTimeout    = 10 * time.Second

	DefaultAuthHTTPPort = "8081"

	DefaultCircuitBreakerThreshold = 500
	DefaultCircuitBreakerTimeout   = 15 * time.Second
	DefaultCircuitBreakerReset     = 10 * time.Second

	DefaultAuthRequestTimeout  = 5 * time.Second
	DefaultAccessTokenTTL      = 15 * time.Minute
	DefaultRefreshTokenTTL     = 7 * 24 * time.Hour
	DefaultMaxActiveFamilies   = 10
	DefaultRotationRateLimit   = 5
	DefaultRotationRateWindow  = 60 * time.Second
	DefaultTokenRetention      = 90 * 24 * time.Hour
	DefaultCleanupInterval     = 1 * time.Hour
	DefaultAuditBufferSize     = 1024
	DefaultTransientRetryAfter = 2 * time.Second
	RateLimitSweepInterval     = 1 * time.Minute
	RateLimitCleanupInterval   = 5 * time.Minute
	AuditStreamWriteWait       = 10 * time.Second
	AuditStreamPongWait        = 60 * time.Second
	AuditStreamPingPeriod      = 54 * time.Second
	AuditStreamSendBufSize     = 64
	AuditStreamReadBufferSize  = 1024
	AuditStreamWriteBufferSize = 1024
	RefreshCookieName          = "refresh_token"
	FamilyCookieName           = "refresh_family"
	RefreshCookiePath          = "/api/auth"
	InternalAPIKeyHeader       = "X-Internal-Key"

	RateLimitRefreshRequestsPerSecond  = 2.0
	RateLimitRefreshBurst              = 10
	RateLimitLogoutRequestsPerSecond   = 2.0
	RateLimitLogoutBurst               = 10
	RateLimitSessionsRequestsPerSecond = 5.0
	RateLimitSessionsBurst             = 20
	RateLimitGeneralRequestsPerSecond  = 10.0
	RateLimitGeneralBurst              = 50

	LoggerMaxSize    = 100
	LoggerMaxBackups = 3
	LoggerMaxAge     = 28
)

type TraceIDKeyType string

const TraceIDKey TraceIDKeyType = "trace_id"
