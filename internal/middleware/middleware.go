// Package middleware assembles the request middleware chain on top of ginx.
package middleware

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/ginx"
	"github.com/simp-lee/logger"

	"github.com/simp-lee/recyclebin/internal/pkg"
)

// DefaultRequestIDHeader carries the request ID when Config.RequestIDHeader is empty.
const DefaultRequestIDHeader = "X-Request-ID"

// Config selects the behavior of the middleware chain.
type Config struct {
	// LoggerOptions configure the access log and the panic log.
	LoggerOptions []logger.Option

	// RequestIDHeader names the request and response header carrying the request ID.
	RequestIDHeader string

	// TrustUpstream reuses an incoming request ID instead of always generating one.
	TrustUpstream bool

	// CORS configures cross-origin handling. Without options no origin is allowed.
	CORS []ginx.Option[ginx.CORSConfig]
}

// Chain returns a single gin handler running, in order: request ID, access
// log, panic recovery and CORS. Errors the chain writes itself (a recovered
// panic) use the standard JSON envelope:
//
//	{"code": 500, "message": "internal server error", "data": null}
//
// The request ID is echoed in the response header, exposed to browser
// scripts, and attached to the request context so slog calls made with that
// context carry request_id.
//
// Chain panics if a logger cannot be built from cfg.LoggerOptions or if CORS
// combines a wildcard origin with credentials.
func Chain(cfg Config) gin.HandlerFunc {
	header := cfg.RequestIDHeader
	if header == "" {
		header = DefaultRequestIDHeader
	}

	requestID := []ginx.RequestIDOption{
		ginx.WithRequestIDHeader(header),
		ginx.WithContextInjector(injectRequestID),
	}
	if !cfg.TrustUpstream {
		requestID = append(requestID, ginx.WithIgnoreIncoming())
	}

	return ginx.NewChain().
		WithErrorFormat(Envelope).
		Use(ginx.RequestID(requestID...)).
		Use(ginx.Logger(cfg.LoggerOptions...)).
		Use(ginx.Recovery(cfg.LoggerOptions...)).
		Use(ginx.CORS(cfg.CORS...)).
		Build()
}

// Envelope formats middleware errors like handler responses.
func Envelope(status int, message string) any {
	return pkg.Response{Code: status, Message: message}
}

func injectRequestID(ctx context.Context, id string) context.Context {
	return logger.WithContextAttrs(ctx, slog.String("request_id", id))
}
