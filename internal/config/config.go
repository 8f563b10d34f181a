// Package config reads board bring-up configuration from the
// environment, following the teacher's os.Getenv("ENV")-style convention
// rather than introducing a configuration file format the rest of the
// pack doesn't use.
package config

import (
	"os"
	"strconv"
)

// Config is the set of knobs cmd/tockkernel reads at startup.
type Config struct {
	// Env selects "dev" (colorized console log, permissive CORS) or
	// anything else for production defaults.
	Env string

	// ProcessSlots sizes the kernel's static process table.
	ProcessSlots int

	// AdminAddr is the admin/introspection HTTP API's listen address.
	AdminAddr string

	// RedisAddr backs the Redis-based credentials policy, when enabled.
	RedisAddr     string
	RequireCreds  bool

	// SessionSecret signs the admin API's session cookies.
	SessionSecret string

	// AdminUser/AdminPass gate the admin API's single login endpoint.
	AdminUser string
	AdminPass string

	// NoSleep runs the main loop in deterministic no-sleep mode (§4.2).
	NoSleep bool
}

// FromEnv reads Config from the process environment, applying the same
// defaults a board bring-up without any environment configured would
// want for local development.
func FromEnv() Config {
	return Config{
		Env:           getenv("ENV", "dev"),
		ProcessSlots:  getenvInt("TOCK_PROCESS_SLOTS", 8),
		AdminAddr:     getenv("TOCK_ADMIN_ADDR", ":8080"),
		RedisAddr:     getenv("TOCK_REDIS_ADDR", "127.0.0.1:6379"),
		RequireCreds:  getenvBool("TOCK_REQUIRE_CREDENTIALS", false),
		SessionSecret: getenv("TOCK_SESSION_SECRET", "dev-insecure-session-secret"),
		AdminUser:     getenv("TOCK_ADMIN_USER", "admin"),
		AdminPass:     getenv("TOCK_ADMIN_PASS", "admin"),
		NoSleep:       getenvBool("TOCK_NO_SLEEP", false),
	}
}

func getenv(key, dflt string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return dflt
}

func getenvInt(key string, dflt int) int {
	v := os.Getenv(key)
	if v == "" {
		return dflt
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return dflt
	}
	return n
}

func getenvBool(key string, dflt bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return dflt
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return dflt
	}
	return b
}
