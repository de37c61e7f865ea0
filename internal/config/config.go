package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"strings"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Secrets and identifiers are strings; counts and
// costs are ints.  Token lifetimes stay in their textual form and are parsed
// by utils.ParseExpiry so that values such as "90d" are accepted.
type Config struct {
	Env              string   // application environment ("development" or "production")
	Port             string   // HTTP port to listen on
	Database         string   // MySQL DSN, may contain a <PASSWORD> placeholder
	DatabasePassword string   // substituted into Database
	JWTSecret        string   // secret used to sign session tokens
	JWTExpiresIn     string   // session token lifetime, e.g. "1d", "12h"
	CookieExpireDays int      // lifetime of the token cookie in days
	BcryptCost       int      // bcrypt cost for password hashing
	CORSOrigins      []string // origins allowed to send credentialed requests
	MigrateOnStart   bool     // apply embedded SQL migrations before serving
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:              envStr("APP_ENV", "development"),
		Port:             envStr("PORT", "3000"),
		Database:         must("DATABASE"),
		DatabasePassword: os.Getenv("DATABASE_PASSWORD"), // empty allowed
		JWTSecret:        must("JWT_SECRET"),
		JWTExpiresIn:     envStr("JWT_EXPIRES_IN", "1d"),
		CookieExpireDays: positiveInt("JWT_COOKIE_EXPIRES_IN", 90),
		BcryptCost:       positiveInt("BCRYPT_COST", 10),
		CORSOrigins:      splitList(envStr("CORS_ORIGINS", "http://localhost:8080,https://switchstack-app-frontend.vercel.app")),
		MigrateOnStart:   envBool("DB_MIGRATE", true),
	}
}

// IsProduction reports whether the service runs in production mode.  It
// controls the cookie Secure flag and the log format.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// DSN returns the database connection string with the password placeholder
// replaced.
func (c Config) DSN() string {
	return strings.ReplaceAll(c.Database, "<PASSWORD>", c.DatabasePassword)
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// positiveInt reads an integer variable and falls back to def when the value
// is missing, malformed or not positive.
func positiveInt(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
