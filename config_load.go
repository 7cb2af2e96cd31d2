package goIdentity

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override read by LoadConfig.
const EnvPrefix = "GOIDENTITY_"

// LoadConfig builds a Config from defaults, then the YAML file at path (if
// path is not empty), then GOIDENTITY_* environment variables. Key files named
// by Token.PrivateKeyFile and Token.PublicKeyFile are read last.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.Token.PrivateKeyFile != "" {
		data, err := os.ReadFile(cfg.Token.PrivateKeyFile)
		if err != nil {
			return Config{}, fmt.Errorf("read private key: %w", err)
		}
		cfg.Token.PrivateKeyPEM = string(data)
	}
	if cfg.Token.PublicKeyFile != "" {
		data, err := os.ReadFile(cfg.Token.PublicKeyFile)
		if err != nil {
			return Config{}, fmt.Errorf("read public key: %w", err)
		}
		cfg.Token.PublicKeyPEM = string(data)
	}

	return cfg, nil
}
