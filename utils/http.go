package utils

import "github.com/valyala/fasthttp"

// WriteJSON encodes payload as the response body with the given status.
func WriteJSON(ctx *fasthttp.RequestCtx, status int, payload interface{}) error {
	body, err := Marshal(payload)
	if err != nil {
		WriteError(ctx, fasthttp.StatusInternalServerError, "failed to encode response")
		return err
	}

	setNoCacheHeaders(ctx)
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(body)

	return nil
}

func WriteError(ctx *fasthttp.RequestCtx, status int, message string) {
	setNoCacheHeaders(ctx)
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)

	body, err := Marshal(map[string]string{
		"error":   fasthttp.StatusMessage(status),
		"message": message,
	})
	if err != nil {
		ctx.SetBodyString(`{"error":"Internal Server Error","message":"An unexpected error occurred"}`)
		return
	}

	ctx.SetBody(body)
}

func setNoCacheHeaders(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	ctx.Response.Header.Set("Pragma", "no-cache")
	ctx.Response.Header.Set("Expires", "0")

	if requestID := string(ctx.Request.Header.Peek("X-Request-ID")); requestID != "" {
		ctx.Response.Header.Set("X-Request-ID", requestID)
	}
}
