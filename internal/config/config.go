// Package config collects the service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-devicekey-go/internal/token"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverBolt     = "bolt"
)

// DefaultBcryptCost matches the cost existing password hashes were created with.
const DefaultBcryptCost = 10

type Config struct {
	Host            string
	Port            string
	StoreDriver     string
	TokenTTL        time.Duration
	BcryptCost      int
	CORSOrigins     []string
	AssertionSecret string
	AssertionIssuer string
}

// Addr is the listen address.
func (c Config) Addr() string { return c.Host + ":" + c.Port }

// ConfigFromEnv reads service config from environment variables, falling back
// to defaults for anything unset or unparsable.
func ConfigFromEnv() Config {
	cfg := Config{
		Host:            getenv("HOST", "0.0.0.0"),
		Port:            getenv("PORT", "3000"),
		StoreDriver:     strings.ToLower(getenv("STORE_DRIVER", DriverMemory)),
		TokenTTL:        token.DefaultTTL,
		BcryptCost:      DefaultBcryptCost,
		CORSOrigins:     []string{"*"},
		AssertionSecret: os.Getenv("ASSERTION_SECRET"),
		AssertionIssuer: getenv("ASSERTION_ISSUER", "devicekey"),
	}
	if d, err := time.ParseDuration(os.Getenv("TOKEN_TTL")); err == nil && d > 0 {
		cfg.TokenTTL = d
	}
	if n, err := strconv.Atoi(os.Getenv("BCRYPT_COST")); err == nil {
		cfg.BcryptCost = n
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) > 0 {
			cfg.CORSOrigins = origins
		}
	}
	return cfg
}

// Validate rejects settings the service can't run with.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory, DriverPostgres, DriverBolt:
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost %d out of range [%d,%d]", c.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
