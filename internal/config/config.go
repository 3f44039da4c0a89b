package config

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is process configuration, read from the environment after a
// best-effort .env load. An empty DataDir selects the in-memory store and
// registry; a path selects the Badger-backed pair.
type Config struct {
	Addr          string `envconfig:"ADDR" default:":8080"`
	ScenariosPath string `envconfig:"SCENARIOS_PATH" default:"scenarios.json"`
	DataDir       string `envconfig:"DATA_DIR" default:""`
	DeployVersion string `envconfig:"DEPLOY_VERSION" default:"dev"`
}

func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
