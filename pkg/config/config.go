package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	defaultLanguage   = "fr"
	defaultListenAddr = ":8080"
)

// Config holds the application configuration.
type Config struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GoogleAPIKey    string
	DeepSeekAPIKey  string
	DeepSeekBaseURL string

	DBPath     string
	Language   string
	ListenAddr string

	Orchestration *OrchestrationConfig
	ConfigDir     string
}

// FileConfig represents the structure of ~/.finroute/config.yaml.
// API keys are never read from the file.
type FileConfig struct {
	DBPath          string `yaml:"db_path"`
	Language        string `yaml:"language"`
	ListenAddr      string `yaml:"listen_addr"`
	DeepSeekBaseURL string `yaml:"deepseek_base_url"`
}

// Load reads configuration from config files and environment variables.
// Environment variables take precedence over file configuration.
func Load() (*Config, error) {
	return LoadWithResponderFile("")
}

// LoadWithResponderFile loads config with a specific responders file. An empty
// path means ~/.finroute/responders.yaml, falling back to built-in defaults.
func LoadWithResponderFile(respondersPath string) (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	fileConfig, err := loadFileConfig(filepath.Join(configDir, "config.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		GoogleAPIKey:    os.Getenv("GOOGLE_API_KEY"),
		DeepSeekAPIKey:  os.Getenv("DEEPSEEK_API_KEY"),
		DeepSeekBaseURL: getEnvOrDefault("DEEPSEEK_BASE_URL", fileConfig.DeepSeekBaseURL),
		DBPath:          getEnvOrDefault("FINROUTE_DB", fileConfig.DBPath),
		Language:        getEnvOrDefault("FINROUTE_LANGUAGE", fileConfig.Language),
		ListenAddr:      getEnvOrDefault("FINROUTE_LISTEN_ADDR", fileConfig.ListenAddr),
		ConfigDir:       configDir,
	}
	if cfg.Language == "" {
		cfg.Language = defaultLanguage
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}

	explicit := respondersPath != ""
	if !explicit {
		respondersPath = filepath.Join(configDir, "responders.yaml")
	}
	if _, statErr := os.Stat(respondersPath); statErr == nil || explicit {
		orch, err := LoadOrchestrationConfig(respondersPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load responders config from %s: %w", respondersPath, err)
		}
		cfg.Orchestration = orch
	} else {
		cfg.Orchestration = DefaultOrchestrationConfig()
	}

	return cfg, nil
}

// HasAdapter returns true if the API key for the given adapter is configured.
func (c *Config) HasAdapter(name string) bool {
	switch name {
	case "anthropic":
		return c.AnthropicAPIKey != ""
	case "openai":
		return c.OpenAIAPIKey != ""
	case "google":
		return c.GoogleAPIKey != ""
	case "deepseek":
		return c.DeepSeekAPIKey != ""
	case "mock":
		return true
	default:
		return false
	}
}

// loadFileConfig reads the config file, returning empty config if not found.
func loadFileConfig(path string) (*FileConfig, error) {
	cfg := &FileConfig{}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// getEnvOrDefault returns the environment variable value if set,
// otherwise returns the default value.
func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}

func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".finroute")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}
	return configDir, nil
}
