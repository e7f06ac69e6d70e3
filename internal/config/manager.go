package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the user's persistent configuration preferences — the
// settings that outlive a single process, as opposed to RuntimeConfig's
// per-invocation environment overrides.
type Config struct {
	Model string `json:"model,omitempty"` // Default model name, used when -model is unset
}

// Manager handles loading and saving the configuration.
type Manager struct {
	configDir string
	testMode  bool
}

// NewManager creates a new configuration manager.
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}

	coreConfigDir := filepath.Join(configDir, "convcore")
	return &Manager{
		configDir: coreConfigDir,
	}, nil
}

// NewManagerWithRuntime creates a Manager honoring RuntimeConfig.TestMode: in
// test mode, Save becomes a no-op so scripted or CI runs never write to a
// developer's real config.json.
func NewManagerWithRuntime(rc RuntimeConfig) (*Manager, error) {
	m, err := NewManager()
	if err != nil {
		return nil, err
	}
	m.testMode = rc.TestMode
	return m, nil
}

// GetConfigPath returns the absolute path to the config.json file.
func (m *Manager) GetConfigPath() string {
	return filepath.Join(m.configDir, "config.json")
}

// Load reads the configuration from disk.
// If the file does not exist, it returns an empty Config and no error.
func (m *Manager) Load() (*Config, error) {
	path := m.GetConfigPath()

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Config{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config json: %w", err)
	}

	return &cfg, nil
}

// Save writes the configuration to disk with restricted permissions (0600).
// In test mode (RuntimeConfig.TestMode) it is a no-op.
func (m *Manager) Save(cfg *Config) error {
	if m.testMode {
		return nil
	}

	// Ensure directory exists
	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := m.GetConfigPath()
	// Write with 0600 permissions (read/write only by owner)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Exists checks if the configuration file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.GetConfigPath())
	return !os.IsNotExist(err)
}
