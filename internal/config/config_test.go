package config_test

import (
	"errors"
	"testing"

	"bouncer/internal/config"
)

func TestLoadCredentials_FlagsOverrideEnv(t *testing.T) {
	t.Setenv(config.EnvUser, "envuser")
	t.Setenv(config.EnvPassword, "envpass")
	t.Setenv(config.EnvBaseURL, "https://jira.env.example.com")

	c, err := config.LoadCredentials("flaguser", "", "")
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if c.User != "flaguser" {
		t.Errorf("User = %q, want flag value", c.User)
	}
	if c.Password != "envpass" {
		t.Errorf("Password = %q, want env value", c.Password)
	}
	if c.BaseURL != "https://jira.env.example.com" {
		t.Errorf("BaseURL = %q, want env value", c.BaseURL)
	}
}

func TestLoadCredentials_DefaultURL(t *testing.T) {
	t.Setenv(config.EnvUser, "u")
	t.Setenv(config.EnvPassword, "p")
	t.Setenv(config.EnvBaseURL, "")

	c, err := config.LoadCredentials("", "", "")
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if c.BaseURL != config.DefaultBaseURL {
		t.Errorf("BaseURL = %q, want default", c.BaseURL)
	}
}

func TestLoadCredentials_Missing(t *testing.T) {
	t.Setenv(config.EnvUser, "")
	t.Setenv(config.EnvPassword, "")

	_, err := config.LoadCredentials("", "", "")
	if !errors.Is(err, config.ErrNoCredentials) {
		t.Fatalf("err = %v, want ErrNoCredentials", err)
	}
}
