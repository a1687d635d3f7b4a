// Package config resolves runtime settings that live outside the pillar
// mapping file: tracker credentials and endpoint, from flags, environment
// variables, or a local .env file.
package config

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables consulted for tracker access.
const (
	EnvUser     = "SSO_USER"
	EnvPassword = "SSO_PASS"
	EnvBaseURL  = "JIRA_URL"
)

// DefaultBaseURL is used when neither the flag nor JIRA_URL is set.
const DefaultBaseURL = "https://issues.example.com"

// ErrNoCredentials indicates that no username/password pair could be
// resolved from any source.
var ErrNoCredentials = errors.New("tracker credentials not set (flags or SSO_USER/SSO_PASS)")

// Credentials holds resolved tracker access settings.
type Credentials struct {
	User     string
	Password string
	BaseURL  string
}

// LoadCredentials resolves credentials with flag values taking precedence
// over the environment. A .env file in the working directory is honored;
// its absence is not an error.
func LoadCredentials(flagUser, flagPassword, flagURL string) (Credentials, error) {
	_ = godotenv.Load()

	c := Credentials{
		User:     firstNonEmpty(flagUser, os.Getenv(EnvUser)),
		Password: firstNonEmpty(flagPassword, os.Getenv(EnvPassword)),
		BaseURL:  firstNonEmpty(flagURL, os.Getenv(EnvBaseURL), DefaultBaseURL),
	}
	if c.User == "" || c.Password == "" {
		return Credentials{}, ErrNoCredentials
	}
	return c, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
