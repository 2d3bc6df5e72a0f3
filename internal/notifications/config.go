package notifications

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads notification configuration from a YAML file, applying
// retry defaults for fields the file omits.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read notification config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse notification config: %w", err)
	}

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultConfig().RetryBaseDelay
	}
	if cfg.SMTP.Host != "" {
		if err := cfg.SMTP.Validate(); err != nil {
			return cfg, fmt.Errorf("smtp config: %w", err)
		}
	}
	return cfg, nil
}
