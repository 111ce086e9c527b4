// Package service assembles a runnable cache instance from configuration:
// logger, metrics, health, persistent store, cache manager and admin server.
package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-cache/cache"
	"github.com/saiset-co/sai-cache/config"
	"github.com/saiset-co/sai-cache/health"
	"github.com/saiset-co/sai-cache/logger"
	"github.com/saiset-co/sai-cache/metrics"
	"github.com/saiset-co/sai-cache/server"
	"github.com/saiset-co/sai-cache/storage"
	"github.com/saiset-co/sai-cache/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

type Service struct {
	ctx             context.Context
	cancel          context.CancelFunc
	container       *Container
	done            chan struct{}
	wg              sync.WaitGroup
	state           atomic.Value
	shutdownTimeout time.Duration
}

func NewService(ctx context.Context, configPath string) (*Service, error) {
	if configPath == "" {
		return nil, types.ErrConfigNotFound
	}

	if _, err := os.Stat(configPath); err != nil {
		return nil, types.WrapError(err, "file does not exist")
	}

	configManager, err := config.NewManager(configPath)
	if err != nil {
		return nil, types.WrapError(err, "failed to register config manager")
	}

	return newService(ctx, configManager)
}

// NewServiceFromConfig assembles a service from an already loaded
// configuration.
func NewServiceFromConfig(ctx context.Context, serviceConfig *types.ServiceConfig) (*Service, error) {
	if serviceConfig == nil {
		return nil, types.ErrConfigIsNil
	}

	return newService(ctx, config.NewManagerFromConfig(serviceConfig))
}

func newService(ctx context.Context, configManager types.ConfigManager) (*Service, error) {
	serviceCtx, cancel := context.WithCancel(ctx)

	service := &Service{
		ctx:             serviceCtx,
		cancel:          cancel,
		container:       NewContainer(),
		done:            make(chan struct{}),
		shutdownTimeout: 30 * time.Second,
	}

	service.state.Store(StateStopped)

	if err := registerProviders(serviceCtx, service.container, configManager); err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to register providers")
	}

	return service, nil
}

// Start runs the service and blocks until it is stopped by Stop, a signal or
// the parent context.
func (s *Service) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		s.logger().Warn("Service is already running")
		return types.ErrServiceIsRunning
	}

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				runErr = fmt.Errorf("service panic: %v", r)
				s.logger().Error("Service run panic", zap.String("stack", string(buf[:n])))
				s.setState(StateStopped)
			}
		}()

		runErr = s.run()
	}()

	return runErr
}

func (s *Service) run() error {
	s.logger().Info("Starting service")

	if err := s.startComponents(); err != nil {
		s.cancel()
		s.setState(StateStopped)
		if stopErr := s.stopComponents(); stopErr != nil {
			s.logger().Error("Error while rolling back start", zap.Error(stopErr))
		}
		return types.WrapError(err, "failed to start components")
	}

	s.setState(StateRunning)
	s.setupSignalHandling()

	s.wg.Add(1)
	go s.contextMonitor()

	s.logger().Info("Service started successfully")

	<-s.done

	if err := s.stopComponents(); err != nil {
		s.logger().Error("Error during service shutdown", zap.Error(err))
	}

	s.wg.Wait()
	s.setState(StateStopped)

	s.logger().Info("Service stopped gracefully")
	return nil
}

func (s *Service) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		s.logger().Warn("Service is not running")
		return types.ErrServiceIsNotRunning
	}

	s.logger().Info("Stopping service...")
	s.cancel()

	return nil
}

func (s *Service) Done() <-chan struct{} {
	return s.done
}

func (s *Service) IsRunning() bool {
	return s.getState() == StateRunning
}

// Cache returns the cache manager of this instance.
func (s *Service) Cache() types.CacheManager {
	return s.container.GetCache()
}

// AdminAddr returns the bound admin address, or "" when the admin server is
// disabled or not started.
func (s *Service) AdminAddr() string {
	if admin := s.container.Admin.Load(); admin != nil {
		return admin.Addr()
	}
	return ""
}

func (s *Service) logger() types.LoggerManager {
	return s.container.GetLogger()
}

func (s *Service) getState() State {
	return s.state.Load().(State)
}

func (s *Service) setState(newState State) {
	s.state.Store(newState)
}

func (s *Service) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}

func (s *Service) startComponents() error {
	steps := []struct {
		name    string
		manager types.LifecycleManager
	}{
		{"logger", s.container.GetLogger()},
		{"metrics manager", s.container.GetMetrics()},
		{"health manager", s.container.GetHealth()},
		{"cache manager", s.container.GetCache()},
	}

	if collector := s.container.Collector.Load(); collector != nil {
		steps = append(steps, struct {
			name    string
			manager types.LifecycleManager
		}{"stats collector", collector})
	}

	if admin := s.container.Admin.Load(); admin != nil {
		steps = append(steps, struct {
			name    string
			manager types.LifecycleManager
		}{"admin server", admin})
	}

	for _, step := range steps {
		if step.manager == nil {
			continue
		}

		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		default:
		}

		if err := step.manager.Start(); err != nil {
			return types.WrapError(err, "failed to start "+step.name)
		}
	}

	s.logger().Info("All components started successfully")
	return nil
}

func (s *Service) stopComponents() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	var errs []error

	s.logger().Info("Stopping service components...")

	if admin := s.container.Admin.Load(); admin != nil && admin.IsRunning() {
		if err := admin.Stop(); err != nil {
			s.logger().Error("Failed to stop admin server", zap.Error(err))
			errs = append(errs, err)
		}
	}

	g, gCtx := errgroup.WithContext(ctx)

	if collector := s.container.Collector.Load(); collector != nil && collector.IsRunning() {
		g.Go(func() error {
			return stopManager(gCtx, s.logger(), "stats collector", collector)
		})
	}

	if manager := s.container.GetCache(); manager != nil && manager.IsRunning() {
		g.Go(func() error {
			return stopManager(gCtx, s.logger(), "cache manager", manager)
		})
	}

	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}

	g, gCtx = errgroup.WithContext(ctx)

	if manager := s.container.GetHealth(); manager != nil && manager.IsRunning() {
		g.Go(func() error {
			return stopManager(gCtx, s.logger(), "health manager", manager)
		})
	}

	if manager := s.container.GetMetrics(); manager != nil && manager.IsRunning() {
		g.Go(func() error {
			return stopManager(gCtx, s.logger(), "metrics manager", manager)
		})
	}

	if store := s.container.GetStore(); store != nil {
		g.Go(func() error {
			if err := store.Close(); err != nil {
				s.logger().Error("Failed to close persistent store", zap.Error(err))
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}

	s.logger().Info("All components stopped")

	if manager := s.container.GetLogger(); manager != nil && manager.IsRunning() {
		_ = manager.Stop()
	}

	if len(errs) > 0 {
		return types.NewErrorf("errors during shutdown: %v", errs)
	}

	return nil
}

func stopManager(ctx context.Context, log types.Logger, name string, manager types.LifecycleManager) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := manager.Stop(); err != nil {
		log.Error("Failed to stop "+name, zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) setupSignalHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case sig := <-sigChan:
			s.logger().Info("Received shutdown signal", zap.String("signal", sig.String()))
			if s.transitionState(StateRunning, StateStopping) {
				s.cancel()
			}

		case <-s.ctx.Done():
			s.logger().Info("Service context cancelled")
		}

		signal.Stop(sigChan)
	}()
}

func (s *Service) contextMonitor() {
	defer s.wg.Done()
	defer close(s.done)

	<-s.ctx.Done()

	switch err := s.ctx.Err(); {
	case types.IsError(err, context.Canceled):
		s.logger().Info("Service shutdown: context cancelled")
	case types.IsError(err, context.DeadlineExceeded):
		s.logger().Warn("Service shutdown: context deadline exceeded")
	default:
		s.logger().Info("Service shutdown: context done")
	}
}

func registerProviders(ctx context.Context, container *Container, configManager types.ConfigManager) error {
	var metricsManager types.MetricsManager
	var healthManager types.HealthManager

	container.SetConfig(configManager)

	_config := configManager.GetConfig()
	if _config == nil {
		return types.ErrConfigIsNil
	}

	loggerManager, err := logger.NewManager(_config.Logger)
	if err != nil {
		return types.WrapError(err, "failed to register logger")
	}
	container.SetLogger(loggerManager)

	if _config.Metrics != nil && _config.Metrics.Enabled {
		metricsManager, err = metrics.NewMetricsManager(_config.Metrics, loggerManager)
		if err != nil {
			return types.WrapError(err, "failed to register metrics manager")
		}
		container.SetMetrics(metricsManager)
	}

	if _config.Health != nil && _config.Health.Enabled {
		healthManager, err = health.NewManager(ctx, _config.Health, loggerManager, types.ServiceInfo{
			Name:    _config.Name,
			Version: _config.Version,
		})
		if err != nil {
			return types.WrapError(err, "failed to register health manager")
		}
		container.SetHealth(healthManager)
	}

	store, err := storage.NewStore(ctx, _config.Storage, loggerManager)
	if err != nil {
		return types.WrapError(err, "failed to register persistent store")
	}
	if store != nil {
		container.SetStore(store)
	}

	cacheManager, err := cache.NewCacheManager(ctx, configManager, store, loggerManager, metricsManager, healthManager)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return types.WrapError(err, "failed to register cache manager")
	}
	container.SetCache(cacheManager)

	if metricsManager != nil {
		collector := metrics.NewStatsCollector(ctx, loggerManager, metricsManager, cacheManager.Stats, _config.Metrics.CollectInterval)
		container.Collector.Store(collector)
	}

	if _config.Admin != nil && _config.Admin.Enabled {
		admin, err := server.NewAdminServer(ctx, _config.Admin, loggerManager, cacheManager, healthManager, metricsManager, _config.Version)
		if err != nil {
			if store != nil {
				_ = store.Close()
			}
			return types.WrapError(err, "failed to register admin server")
		}
		container.Admin.Store(admin)
	}

	return nil
}
