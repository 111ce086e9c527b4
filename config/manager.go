package config

import (
	"sync"

	"github.com/saiset-co/sai-cache/types"
)

type Manager struct {
	mu         sync.RWMutex
	configPath string
	loader     *Loader
	config     *types.ServiceConfig
	parser     *Parser
}

func NewManager(configPath string) (*Manager, error) {
	m := &Manager{
		configPath: configPath,
		loader:     NewLoader(),
	}

	if err := m.Load(); err != nil {
		return nil, types.WrapError(err, "failed to load initial configuration")
	}

	return m, nil
}

// NewManagerFromConfig wraps an already built configuration.
func NewManagerFromConfig(config *types.ServiceConfig) *Manager {
	return &Manager{
		loader: NewLoader(),
		config: config,
		parser: NewParser(config),
	}
}

func (m *Manager) Load() error {
	config, err := m.loader.LoadFromFile(m.configPath)
	if err != nil {
		return types.WrapError(err, "failed to load configuration from file")
	}

	parser := NewParser(config)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = config
	m.parser = parser

	return nil
}

func (m *Manager) GetConfig() *types.ServiceConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

func (m *Manager) GetValue(path string, defaultValue interface{}) interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.parser == nil {
		return defaultValue
	}
	return m.parser.GetValue(path, defaultValue)
}

func (m *Manager) GetAs(path string, target interface{}) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.parser == nil {
		return types.ErrConfigIsNil
	}
	return m.parser.GetAs(path, target)
}
