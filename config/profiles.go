package config

import "fmt"

// LoadProfile returns the defaults adjusted for a named deployment profile.
func LoadProfile(name string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Profile = name
	switch name {
	case "development":
		cfg.Environment = EnvDevelopment
		cfg.Logging.Level = "debug"
	case "testing":
		cfg.Environment = EnvTesting
		cfg.Storage.Adapter = AdapterMemory
		cfg.Debug = 0
	case "staging":
		cfg.Environment = EnvStaging
		cfg.Logging.Format = "json"
	case "production":
		cfg.Environment = EnvProduction
		cfg.Debug = 0
		cfg.Logging.Format = "json"
		cfg.Logging.Level = "warn"
		cfg.Security.EnableRateLimit = true
	default:
		return nil, fmt.Errorf("unknown profile %q", name)
	}
	return cfg, nil
}
