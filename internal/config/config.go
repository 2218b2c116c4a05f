package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr          string        `env:"ADDR" envDefault:":8080"`
	CatalogPath   string        `env:"CATALOG_PATH"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"30s"`
	IdleAfter     time.Duration `env:"IDLE_AFTER" envDefault:"1h"`
}

// Load reads an optional .env file, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return env.ParseAs[Config]()
}
