// Package server exposes the operational HTTP endpoints of a cache
// instance: health, version, metrics, stats and maintenance.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/health"
	"github.com/saiset-co/sai-cache/types"
	"github.com/saiset-co/sai-cache/utils"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const namespacesPath = "/cache/namespaces/"

// httpHandlerProvider is implemented by metrics managers that serve their
// own exposition format, such as Prometheus.
type httpHandlerProvider interface {
	Handler() http.Handler
}

type AdminServer struct {
	ctx             context.Context
	cancel          context.CancelFunc
	config          *types.AdminConfig
	logger          types.Logger
	cache           types.CacheManager
	health          types.HealthManager
	metrics         types.MetricsManager
	buildInfo       health.BuildInfo
	server          *fasthttp.Server
	listener        net.Listener
	state           atomic.Value
	shutdownTimeout time.Duration
}

// NewAdminServer builds a stopped server. health and metrics may be nil, in
// which case their endpoints answer 404.
func NewAdminServer(ctx context.Context, config *types.AdminConfig, logger types.Logger, cache types.CacheManager, healthManager types.HealthManager, metrics types.MetricsManager, version string) (*AdminServer, error) {
	if config == nil {
		return nil, types.ErrConfigIsNil
	}

	if cache == nil {
		return nil, types.NewErrorf("admin server needs a cache manager")
	}

	shutdownTimeout := config.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	serverCtx, cancel := context.WithCancel(ctx)

	server := &AdminServer{
		ctx:             serverCtx,
		cancel:          cancel,
		config:          config,
		logger:          logger,
		cache:           cache,
		health:          healthManager,
		metrics:         metrics,
		buildInfo:       health.ReadBuildInfo(version),
		shutdownTimeout: shutdownTimeout,
	}

	server.state.Store(StateStopped)

	return server, nil
}

func (a *AdminServer) Start() error {
	if !a.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	addr := fmt.Sprintf("%s:%d", a.config.Host, a.config.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		a.setState(StateStopped)
		return types.WrapError(err, "failed to listen on "+addr)
	}

	a.listener = listener
	a.server = &fasthttp.Server{
		Handler:          a.Handler(),
		Name:             "sai-cache",
		ReadTimeout:      a.config.ReadTimeout,
		WriteTimeout:     a.config.WriteTimeout,
		CloseOnShutdown:  true,
		TCPKeepalive:     true,
		DisableKeepalive: false,
	}

	a.setState(StateRunning)

	go a.serve(a.server, listener)

	a.logger.Info("Admin server started", zap.String("address", listener.Addr().String()))

	return nil
}

func (a *AdminServer) serve(server *fasthttp.Server, listener net.Listener) {
	if err := server.Serve(listener); err != nil {
		a.logger.Error("Admin server failed", zap.Error(err))
		a.transitionState(StateRunning, StateStopped)
	}
}

func (a *AdminServer) Stop() error {
	if !a.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		a.setState(StateStopped)
		a.cancel()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	if err := a.server.ShutdownWithContext(ctx); err != nil {
		a.logger.Warn("Admin server stop timeout", zap.Error(err))
		return nil
	}

	a.logger.Info("Admin server stopped gracefully")
	return nil
}

func (a *AdminServer) IsRunning() bool {
	return a.getState() == StateRunning
}

// Addr returns the bound address once the server is running.
func (a *AdminServer) Addr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Handler routes admin requests through the request middleware. It is
// usable without a listener.
func (a *AdminServer) Handler() fasthttp.RequestHandler {
	return chain(a.route, a.withRequestID, a.withRecovery, a.withLogging)
}

func (a *AdminServer) route(ctx *fasthttp.RequestCtx) {
	method := string(ctx.Method())
	path := string(ctx.Path())

	switch {
	case path == "/health" && method == fasthttp.MethodGet:
		a.handleHealth(ctx)
	case path == "/version" && method == fasthttp.MethodGet:
		a.writeJSON(ctx, fasthttp.StatusOK, a.buildInfo)
	case path == "/metrics" && method == fasthttp.MethodGet:
		a.handleMetrics(ctx)
	case path == "/stats" && method == fasthttp.MethodGet:
		a.writeJSON(ctx, fasthttp.StatusOK, a.cache.Stats())
	case path == "/cache/sweep" && method == fasthttp.MethodPost:
		a.handleSweep(ctx)
	case strings.HasPrefix(path, namespacesPath) && method == fasthttp.MethodDelete:
		a.handleClearNamespace(ctx, strings.TrimPrefix(path, namespacesPath))
	case isKnownPath(path):
		utils.WriteError(ctx, fasthttp.StatusMethodNotAllowed, method+" is not allowed on "+path)
	default:
		utils.WriteError(ctx, fasthttp.StatusNotFound, "no route for "+path)
	}
}

func (a *AdminServer) handleHealth(ctx *fasthttp.RequestCtx) {
	if a.health == nil {
		utils.WriteError(ctx, fasthttp.StatusNotFound, types.ErrHealthIsDisabled.Error())
		return
	}

	report := a.health.Check(ctx)

	status := fasthttp.StatusOK
	if report.Status == types.StatusUnhealthy {
		status = fasthttp.StatusServiceUnavailable
	}

	a.writeJSON(ctx, status, report)
}

func (a *AdminServer) handleMetrics(ctx *fasthttp.RequestCtx) {
	if a.metrics == nil {
		utils.WriteError(ctx, fasthttp.StatusNotFound, types.ErrMetricsIsDisabled.Error())
		return
	}

	if provider, ok := a.metrics.(httpHandlerProvider); ok {
		req, err := newHTTPRequest(ctx)
		if err != nil {
			utils.WriteError(ctx, fasthttp.StatusBadRequest, err.Error())
			return
		}
		provider.Handler().ServeHTTP(newFastResponseWriter(ctx), req)
		return
	}

	body, err := a.metrics.GetMetrics()
	if err != nil {
		a.logger.Error("Failed to collect metrics", zap.Error(err))
		utils.WriteError(ctx, fasthttp.StatusInternalServerError, "failed to collect metrics")
		return
	}

	ctx.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBody(body)
}

func (a *AdminServer) handleSweep(ctx *fasthttp.RequestCtx) {
	removed := a.cache.ClearExpired()
	a.logger.Info("Sweep triggered over admin API", zap.Int("removed", removed))
	a.writeJSON(ctx, fasthttp.StatusOK, map[string]int{"removed": removed})
}

func (a *AdminServer) handleClearNamespace(ctx *fasthttp.RequestCtx, namespace string) {
	if namespace == "" {
		utils.WriteError(ctx, fasthttp.StatusBadRequest, "namespace is empty")
		return
	}

	a.cache.ClearNamespace(namespace)
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (a *AdminServer) writeJSON(ctx *fasthttp.RequestCtx, status int, payload interface{}) {
	if err := utils.WriteJSON(ctx, status, payload); err != nil {
		a.logger.Error("Failed to encode admin response", zap.Error(err))
	}
}

func (a *AdminServer) getState() State {
	return a.state.Load().(State)
}

func (a *AdminServer) setState(newState State) {
	a.state.Store(newState)
}

func (a *AdminServer) transitionState(from, to State) bool {
	return a.state.CompareAndSwap(from, to)
}

func isKnownPath(path string) bool {
	switch path {
	case "/health", "/version", "/metrics", "/stats", "/cache/sweep":
		return true
	}
	return strings.HasPrefix(path, namespacesPath)
}
