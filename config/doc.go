// Package config loads the medallion orchestrator configuration.
//
// Viper reads a YAML file (an explicit --config path, else
// ./cmd/medallion/config.yml, ./config/config.yml or ./config.yml) and an
// optional .env file is loaded with godotenv. Environment variables prefixed
// MEDALLION_ override file values (MEDALLION_STORE_DIR sets store.dir).
//
//	cfg, err := config.Load(config.WithConfigFile(path))
//	plan, err := cfg.Plan()
//
// Every section applies its own defaults and validation; Validate reports
// all problems in one INVALID_CONFIG error.
package config
