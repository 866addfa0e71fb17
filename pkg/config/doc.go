// Package config loads typed configuration from environment variables.
//
// Values are read with github.com/caarlos0/env/v11 after an optional .env file
// has been applied with github.com/joho/godotenv. Each configuration type is
// parsed at most once per process; later calls return the cached copy.
//
//	type Config struct {
//		Addr string `env:"HTTP_ADDR" envDefault:":8080"`
//	}
//
//	cfg, err := config.Load[Config]()
//
// Use WithPrefix to share one struct between several components, and Reset in
// tests that need to re-read the environment.
package config
