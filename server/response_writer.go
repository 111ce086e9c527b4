package server

import (
	"net/http"

	"github.com/valyala/fasthttp"
)

// fastResponseWriter lets a net/http handler write into a fasthttp response.
// Headers are copied over on the first WriteHeader or Write.
type fastResponseWriter struct {
	ctx         *fasthttp.RequestCtx
	header      http.Header
	wroteHeader bool
}

func newFastResponseWriter(ctx *fasthttp.RequestCtx) *fastResponseWriter {
	return &fastResponseWriter{
		ctx:    ctx,
		header: make(http.Header),
	}
}

func (w *fastResponseWriter) Header() http.Header {
	return w.header
}

func (w *fastResponseWriter) WriteHeader(statusCode int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true

	for key, values := range w.header {
		for i, value := range values {
			if i == 0 {
				w.ctx.Response.Header.Set(key, value)
			} else {
				w.ctx.Response.Header.Add(key, value)
			}
		}
	}

	w.ctx.SetStatusCode(statusCode)
}

func (w *fastResponseWriter) Write(data []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ctx.Write(data)
}

// newHTTPRequest builds the minimal net/http request a handler like promhttp
// needs: method, URL and headers.
func newHTTPRequest(ctx *fasthttp.RequestCtx) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, string(ctx.Method()), string(ctx.RequestURI()), nil)
	if err != nil {
		return nil, err
	}

	ctx.Request.Header.VisitAll(func(key, value []byte) {
		req.Header.Add(string(key), string(value))
	})

	return req, nil
}
