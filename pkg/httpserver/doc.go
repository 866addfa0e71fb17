// Package httpserver runs an http.Handler with graceful shutdown and serves
// liveness and readiness checks.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, router); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
//
// Run blocks until ctx is cancelled, SIGINT or SIGTERM arrives, or the
// listener fails.
package httpserver
