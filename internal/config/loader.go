package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".gubacrawl.yaml"

// DefaultEnvFile holds secrets that must not live in the YAML file.
const DefaultEnvFile = ".env"

// Environment variables carrying credentials.
const (
	EnvProxyAppKey    = "GUBACRAWL_PROXY_APP_KEY"
	EnvProxyAppSecret = "GUBACRAWL_PROXY_APP_SECRET" //nolint:gosec // variable name, not a credential
	EnvTargetsDSN     = "GUBACRAWL_TARGETS_DSN"
)

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// LoadConfigFile loads a YAML configuration file.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}
	if cf.Targets == nil {
		cf.Targets = make(map[string]TargetConfig)
	}
	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .gubacrawl.yaml in the current directory
// 3. Look for .gubacrawl.yaml in the user's home directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		cwdConfig := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(cwdConfig); err == nil {
			return cwdConfig
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		homeConfig := filepath.Join(home, DefaultConfigFile)
		if _, err := os.Stat(homeConfig); err == nil {
			return homeConfig
		}
	}

	return ""
}

// LoadEnv reads credentials from the process environment, after loading the
// given dotenv files. Variables already present in the environment win over
// the files. Missing files are ignored.
func LoadEnv(cfg *Config, files ...string) error {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return err
		}
	}

	if v := os.Getenv(EnvProxyAppKey); v != "" {
		cfg.Proxy.AppKey = v
	}
	if v := os.Getenv(EnvProxyAppSecret); v != "" {
		cfg.Proxy.AppSecret = v
	}
	if v := os.Getenv(EnvTargetsDSN); v != "" {
		cfg.TargetSource.DSN = v
	}
	return nil
}
