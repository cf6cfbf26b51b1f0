package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const appDirName = "smart-todo"

// AgentConfig bounds the orchestration loop and shapes model requests.
type AgentConfig struct {
	MaxRounds        int     `json:"max_rounds"`
	MaxErrors        int     `json:"max_errors"`
	ReceiveTimeoutMs int     `json:"receive_timeout_ms"`
	MaxTokens        int     `json:"max_tokens"`
	Temperature      float64 `json:"temperature"`
}

// StoreConfig locates the sqlite task database.
type StoreConfig struct {
	Path string `json:"path"`
}

// ModelConfig selects the model endpoint the agent talks to.
type ModelConfig struct {
	Provider string `json:"provider"`
	Name     string `json:"name,omitempty"`
	BaseURL  string `json:"base_url,omitempty"`
}

// ProviderConfig holds per-provider overrides. API keys may also come from
// the environment (see internal/provider); config values take precedence.
type ProviderConfig struct {
	APIKey  string `json:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
}

// LoggingConfig controls the file-backed logger.
type LoggingConfig struct {
	Level    string `json:"level"`
	Path     string `json:"path"`
	Disabled bool   `json:"disabled,omitempty"`
}

// Config represents application configuration
type Config struct {
	// Scope is the task owner identity used when the caller does not
	// supply one explicitly.
	Scope     string                    `json:"scope"`
	Agent     AgentConfig               `json:"agent"`
	Store     StoreConfig               `json:"store"`
	Model     ModelConfig               `json:"model"`
	Providers map[string]ProviderConfig `json:"providers,omitempty"`
	Logging   LoggingConfig             `json:"logging"`
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "linux":
		if configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); configHome != "" {
			return filepath.Join(configHome, appDirName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", appDirName)
	case "windows":
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, appDirName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Roaming", appDirName)
	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", appDirName)
	}
}

func defaultStateDir() string {
	switch runtime.GOOS {
	case "linux":
		if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
			return filepath.Join(stateHome, appDirName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", appDirName)
	case "windows":
		if localAppData := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); localAppData != "" {
			return filepath.Join(localAppData, appDirName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Local", appDirName)
	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", appDirName)
	}
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	stateDir := defaultStateDir()

	return &Config{
		Scope: "default",
		Agent: AgentConfig{
			MaxRounds:        20,
			MaxErrors:        3,
			ReceiveTimeoutMs: 120000,
			MaxTokens:        1024,
			Temperature:      0.2,
		},
		Store: StoreConfig{
			Path: filepath.Join(stateDir, "tasks.db"),
		},
		Model: ModelConfig{
			Provider: "anthropic",
		},
		Providers: make(map[string]ProviderConfig),
		Logging: LoggingConfig{
			Level: "info",
			Path:  filepath.Join(stateDir, "smart-todo.log"),
		},
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	// Start with default config
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return default config if file doesn't exist
			return config, nil
		}
		return nil, err
	}

	// Unmarshal into default config (overrides only provided fields)
	if err := json.Unmarshal(data, config); err != nil {
		return nil, err
	}

	// Ensure critical fields have defaults if still empty
	stateDir := defaultStateDir()
	if config.Scope == "" {
		config.Scope = "default"
	}
	if config.Agent.MaxRounds <= 0 {
		config.Agent.MaxRounds = 20
	}
	if config.Agent.MaxErrors <= 0 {
		config.Agent.MaxErrors = 3
	}
	if config.Agent.ReceiveTimeoutMs <= 0 {
		config.Agent.ReceiveTimeoutMs = 120000
	}
	if config.Store.Path == "" {
		config.Store.Path = filepath.Join(stateDir, "tasks.db")
	}
	if config.Model.Provider == "" {
		config.Model.Provider = "anthropic"
	}
	if config.Providers == nil {
		config.Providers = make(map[string]ProviderConfig)
	}
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Path == "" {
		config.Logging.Path = filepath.Join(stateDir, "smart-todo.log")
	}

	return config, nil
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ProviderFor returns the override block for a provider, if any.
func (c *Config) ProviderFor(name string) ProviderConfig {
	if c.Providers == nil {
		return ProviderConfig{}
	}
	return c.Providers[name]
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.json")
}
