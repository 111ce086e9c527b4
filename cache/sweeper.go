package cache

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/types"
)

// sweeper runs job on a fixed interval. A non-positive interval disables it.
type sweeper struct {
	cron        *cron.Cron
	interval    time.Duration
	stopTimeout time.Duration
	logger      types.Logger
	job         func()
	scheduled   bool
}

func newSweeper(interval time.Duration, logger types.Logger, job func()) *sweeper {
	cronLogger := safeCronLogger{logger: logger}

	return &sweeper{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger)),
		),
		interval:    interval,
		stopTimeout: 10 * time.Second,
		logger:      logger,
		job:         job,
	}
}

func (s *sweeper) start() error {
	if s.interval <= 0 {
		s.logger.Info("Periodic sweep disabled")
		return nil
	}

	if !s.scheduled {
		spec := fmt.Sprintf("@every %s", s.interval)
		if _, err := s.cron.AddFunc(spec, s.job); err != nil {
			return types.WrapError(err, "failed to schedule sweep")
		}
		s.scheduled = true
	}

	s.cron.Start()
	s.logger.Info("Periodic sweep scheduled", zap.Duration("interval", s.interval))

	return nil
}

// stop halts scheduling and waits for a running sweep to finish.
func (s *sweeper) stop() {
	if s.interval <= 0 {
		return
	}

	stopCtx := s.cron.Stop()

	select {
	case <-stopCtx.Done():
	case <-time.After(s.stopTimeout):
		s.logger.Warn("Sweep did not finish before stop timeout", zap.Duration("timeout", s.stopTimeout))
	}
}

type safeCronLogger struct {
	logger types.Logger
}

func (l safeCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, cronFields(keysAndValues)...)
}

func (l safeCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := append(cronFields(keysAndValues), zap.Error(err))
	l.logger.Error(msg, fields...)
}

func cronFields(keysAndValues []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)

	for i := 0; i < len(keysAndValues)-1; i += 2 {
		key := fmt.Sprintf("%v", keysAndValues[i])
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}

	return fields
}
