package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/saleimport/internal/core"
	"github.com/JonMunkholm/saleimport/internal/logging"
	mw "github.com/JonMunkholm/saleimport/internal/web/middleware"
)

// WithRequestMetadata adds the client address and User-Agent to ctx for the
// import logs.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithClientIP(ctx, mw.ClientIP(r))
	ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
	return ctx
}

// requestLogger returns the logger carrying the request id.
func requestLogger(r *http.Request) *slog.Logger {
	return logging.FromContext(r.Context())
}
