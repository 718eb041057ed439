package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	authcleanup "github.com/AlibekovAA/session-guard/internal/auth/cleanup"
	"github.com/AlibekovAA/session-guard/internal/common/bootstrap"
	commonhttp "github.com/AlibekovAA/session-guard/internal/common/http"
	srv "github.com/AlibekovAA/session-guard/internal/common/server"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.NewAuthApp(ctx)
	if err != nil {
		os.Stderr.WriteString(fmt.Sprintf("failed to start auth service: %v\n", err))
		os.Exit(1)
	}
	log := app.Log
	cfg := app.Config

	go authcleanup.StartRetentionCleanup(ctx, app.Sessions, cfg.CleanupInterval, cfg.TokenRetention, log)

	rateLimiter := commonhttp.NewStrictRateLimiter()
	baseHandler := commonhttp.BuildBaseHandler(log, app.Handler)

	rateLimitMiddleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if path == "/health" || path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}
			rateLimiter.MiddlewareForPath(path)(next).ServeHTTP(w, r)
		})
	}

	server := srv.NewServer(srv.DefaultServerConfig(cfg.HTTPPort, cfg.RequestTimeout), rateLimitMiddleware(baseHandler))

	shutdownHooks := []srv.ShutdownHook{
		func(ctx context.Context) error {
			log.Infof("auth service: stopping background workers")
			cancel()
			rateLimiter.Stop()
			return nil
		},
		func(ctx context.Context) error {
			log.Infof("auth service: flushing audit events and closing connections")
			app.Close()
			return nil
		},
	}

	srv.StartWithGracefulShutdownAndHooks(server, log, "auth", shutdownHooks)
}
