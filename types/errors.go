package types

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigIsNil          = errors.New("config is nil")
	ErrConfigValidateFailed = errors.New("config validate failed")
)

var (
	ErrCacheAlreadyRunning = errors.New("cache already running")
	ErrCacheNotRunning     = errors.New("cache not running")
	ErrCacheEntryCorrupted = errors.New("cache entry corrupted")
	ErrGeneratorIsNil      = errors.New("cache generator is nil")
	ErrGeneratorPanic      = errors.New("cache generator panicked")
)

var (
	ErrStorageTypeUnknown   = errors.New("storage type unknown")
	ErrStorageConfigInvalid = errors.New("storage config invalid")
	ErrStorageQuotaExceeded = errors.New("storage quota exceeded")
	ErrStorageClosed        = errors.New("storage closed")
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrStoragePanic         = errors.New("storage panicked")
)

var (
	ErrMetricsTypeUnknown = errors.New("metrics type unknown")
	ErrMetricsIsDisabled  = errors.New("metrics manager is disabled")
)

var (
	ErrHealthCheckFailed  = errors.New("health check failed")
	ErrHealthCheckTimeout = errors.New("health check timeout")
	ErrHealthIsDisabled   = errors.New("health is disabled")
)

var (
	ErrLogFileIsEmpty     = errors.New("log file is empty")
	ErrLogFileWrongFormat = errors.New("log file wrong format")
	ErrLoggerTypeUnknown  = errors.New("logger type unknown")
)

var (
	ErrServerNotRunning     = errors.New("server not running")
	ErrServerAlreadyRunning = errors.New("server already running")
	ErrServiceIsRunning     = errors.New("service is running")
	ErrServiceIsNotRunning  = errors.New("service is not running")
)

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}
