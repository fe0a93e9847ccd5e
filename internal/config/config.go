package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr      string
	RedisAddr     string
	RedisPassword string
	PostgresDSN   string
	Debug         bool
}

// Load reads the optional .env file and the environment. Missing values fall
// back to local-dev defaults.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		HTTPAddr:      getenv("HTTP_ADDR", ":8081"),
		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		PostgresDSN:   getenv("POSTGRES_DSN", "host=localhost user=postgres dbname=starcendence sslmode=disable"),
		Debug:         os.Getenv("DEBUG") == "true",
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
