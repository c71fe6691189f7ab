// Package boxconfig is the YAML-backed configuration for a boxctl
// installation: where boxes live on disk and how each one should be
// opened by default.
package boxconfig

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk shape of a boxctl installation's configuration.
type Config struct {
	DataDir  string   `yaml:"data_dir"`
	Catalog  string   `yaml:"catalog_path"`
	Defaults Defaults `yaml:"defaults"`
	Logging  Logging  `yaml:"logging"`
}

// Defaults controls how a box opens when a command doesn't override them.
type Defaults struct {
	Lazy               bool    `yaml:"lazy"`
	CompactionRatio    float64 `yaml:"compaction_ratio"`
	EncryptionKeyFile  string  `yaml:"encryption_key_file"`
}

// Logging controls the verbosity of boxctl's own log output.
type Logging struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the configuration a fresh installation starts
// with.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Catalog: "./data/catalog",
		Defaults: Defaults{
			Lazy:            false,
			CompactionRatio: 0.5,
		},
		Logging: Logging{Level: "info"},
	}
}

// Load reads and parses the configuration at path.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		path = abs
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg to path with secure (0600) permissions, creating the
// parent directory if needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateEncryptionKey generates a fresh 256-bit AES key, hex-encoded
// for storage in the key file a box's encryption_key_file points at.
func GenerateEncryptionKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate encryption key: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// Bootstrap creates a fresh config at path and always generates a new
// encryption key file (box.key) alongside it, overwriting any existing one.
func Bootstrap(path, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	if dataDir != "" {
		cfg.DataDir = dataDir
		cfg.Catalog = filepath.Join(dataDir, "catalog")
	}

	keyHex, err := GenerateEncryptionKey()
	if err != nil {
		return nil, err
	}
	keyPath := filepath.Join(filepath.Dir(path), "box.key")
	if err := os.WriteFile(keyPath, []byte(keyHex), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write encryption key file: %w", err)
	}
	cfg.Defaults.EncryptionKeyFile = keyPath

	if err := Save(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to save bootstrap config: %w", err)
	}
	return cfg, nil
}

// DefaultPath returns the configuration path boxctl looks at when none
// is given explicitly: ~/.config/boxctl/config.yaml.
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./boxctl.yaml"
	}
	return filepath.Join(homeDir, ".config", "boxctl", "config.yaml")
}

// Exists reports whether a configuration file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// LoadEncryptionKey reads and decodes the hex-encoded key at keyFile,
// returning the raw 32-byte AES key a box's Options.EncryptionKey wants.
func LoadEncryptionKey(keyFile string) ([]byte, error) {
	data, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read encryption key file: %w", err)
	}
	key, err := hex.DecodeString(string(data))
	if err != nil {
		return nil, fmt.Errorf("encryption key file is not valid hex: %w", err)
	}
	return key, nil
}
