package server

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/utils"
)

const requestIDHeader = "X-Request-ID"

type middleware func(next fasthttp.RequestHandler) fasthttp.RequestHandler

// chain wraps handler so that the first middleware runs outermost.
func chain(handler fasthttp.RequestHandler, middlewares ...middleware) fasthttp.RequestHandler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}

func (a *AdminServer) withRequestID(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if len(ctx.Request.Header.Peek(requestIDHeader)) == 0 {
			ctx.Request.Header.Set(requestIDHeader, uuid.NewString())
		}

		next(ctx)

		ctx.Response.Header.SetBytesV(requestIDHeader, ctx.Request.Header.Peek(requestIDHeader))
	}
}

var stackBufPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, 4096)
		return &buf
	},
}

func (a *AdminServer) withRecovery(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		defer func() {
			if rec := recover(); rec != nil {
				a.logger.Error("Recovered from panic",
					zap.Any("panic", rec),
					zap.ByteString("method", ctx.Method()),
					zap.ByteString("path", ctx.Path()),
					zap.ByteString("request_id", ctx.Request.Header.Peek(requestIDHeader)),
					zap.String("stack", stackTrace()))

				ctx.Response.Reset()
				utils.WriteError(ctx, fasthttp.StatusInternalServerError, "An unexpected error occurred")
			}
		}()

		next(ctx)
	}
}

func (a *AdminServer) withLogging(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()

		next(ctx)

		status := ctx.Response.StatusCode()
		fields := []zap.Field{
			zap.ByteString("method", ctx.Method()),
			zap.ByteString("path", ctx.Path()),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", remoteAddr(ctx)),
			zap.ByteString("request_id", ctx.Request.Header.Peek(requestIDHeader)),
		}

		switch {
		case status >= 500:
			a.logger.Error("Request completed", fields...)
		case status >= 400:
			a.logger.Warn("Request completed", fields...)
		default:
			a.logger.Debug("Request completed", fields...)
		}

		if a.metrics != nil {
			a.metrics.Counter("admin_requests_total", map[string]string{
				"method": string(ctx.Method()),
				"status": strconv.Itoa(status),
			}).Inc()
		}
	}
}

func remoteAddr(ctx *fasthttp.RequestCtx) string {
	if forwarded := string(ctx.Request.Header.Peek("X-Forwarded-For")); forwarded != "" {
		if comma := strings.Index(forwarded, ","); comma > 0 {
			return strings.TrimSpace(forwarded[:comma])
		}
		return forwarded
	}

	if realIP := string(ctx.Request.Header.Peek("X-Real-IP")); realIP != "" {
		return realIP
	}

	return ctx.RemoteIP().String()
}

func stackTrace() string {
	buf := stackBufPool.Get().(*[]byte)
	defer stackBufPool.Put(buf)

	n := runtime.Stack(*buf, false)
	if n < len(*buf) {
		return string((*buf)[:n])
	}

	large := make([]byte, 64*1024)
	n = runtime.Stack(large, false)

	return utils.BytesToString(large[:n])
}
