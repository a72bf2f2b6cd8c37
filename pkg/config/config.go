package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/raterudder/zappihistory/pkg/types"
)

const (
	// DefaultPath is where the credentials file lives unless overridden.
	DefaultPath = "~/.zappirc"

	usernameEnv = "MYENERGI_USERNAME"
	passwordEnv = "MYENERGI_PASSWORD"
)

// LoadCredentials reads the YAML credentials file at path and applies any
// environment overrides. The file may be missing when both values come from
// the environment.
func LoadCredentials(path string) (types.Credentials, error) {
	var creds types.Credentials

	expanded, err := expandHome(path)
	if err != nil {
		return creds, err
	}

	data, err := os.ReadFile(expanded)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &creds); err != nil {
			return creds, fmt.Errorf("config: decode yaml %s: %w", expanded, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// fall through to the environment
	default:
		return creds, fmt.Errorf("config: read file: %w", err)
	}

	if v, ok := os.LookupEnv(usernameEnv); ok {
		creds.Username = v
	}
	if v, ok := os.LookupEnv(passwordEnv); ok {
		creds.Password = v
	}

	if creds.Username == "" {
		return creds, fmt.Errorf("config: no username in %s or %s", expanded, usernameEnv)
	}
	if creds.Password == "" {
		return creds, fmt.Errorf("config: no password in %s or %s", expanded, passwordEnv)
	}
	return creds, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: find home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
