package types

import (
	"time"
)

type ConfigManager interface {
	GetConfig() *ServiceConfig
	GetValue(path string, defaultValue interface{}) interface{}
	GetAs(path string, target interface{}) error
}

type ServiceConfig struct {
	Name    string         `yaml:"name" json:"name" validate:"required"`
	Version string         `yaml:"version" json:"version" validate:"required"`
	Logger  *LoggerConfig  `yaml:"logger" json:"logger" validate:"required"`
	Cache   *CacheConfig   `yaml:"cache" json:"cache" validate:"required"`
	Storage *StorageConfig `yaml:"storage" json:"storage" validate:"required"`
	Metrics *MetricsConfig `yaml:"metrics" json:"metrics"`
	Health  *HealthConfig  `yaml:"health" json:"health"`
	Admin   *AdminConfig   `yaml:"admin" json:"admin"`
}

type LoggerConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Level  string      `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn warning error fatal"`
	Config interface{} `yaml:"config" json:"config"`
}

type CacheConfig struct {
	MaxEntries       int           `yaml:"max_entries" json:"max_entries" validate:"min=1"`
	DefaultTTL       time.Duration `yaml:"default_ttl" json:"default_ttl" validate:"min=0"`
	DefaultNamespace string        `yaml:"default_namespace" json:"default_namespace" validate:"required"`
	SweepInterval    time.Duration `yaml:"sweep_interval" json:"sweep_interval" validate:"min=0"`
	PersistentPrefix string        `yaml:"persistent_prefix" json:"persistent_prefix"`
	Singleflight     bool          `yaml:"singleflight" json:"singleflight"`
}

type StorageConfig struct {
	Type            string      `yaml:"type" json:"type" validate:"required"`
	Config          interface{} `yaml:"config" json:"config"`
	Compress        bool        `yaml:"compress" json:"compress"`
	CompressMinSize int         `yaml:"compress_min_size" json:"compress_min_size" validate:"min=0"`
}

type MetricsConfig struct {
	Enabled         bool              `yaml:"enabled" json:"enabled"`
	Type            string            `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Config          interface{}       `yaml:"config" json:"config"`
	Labels          map[string]string `yaml:"labels" json:"labels"`
	CollectInterval time.Duration     `yaml:"collect_interval" json:"collect_interval" validate:"min=0"`
}

type HealthConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	CheckTimeout time.Duration `yaml:"check_timeout" json:"check_timeout" validate:"min=0"`
}

type AdminConfig struct {
	Enabled         bool          `yaml:"enabled" json:"enabled"`
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port" validate:"required_if=Enabled true,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}
