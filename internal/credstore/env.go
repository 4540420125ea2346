package credstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// EnvStore resolves the token from the CONSULT_TOKEN environment variable,
// falling back to the token file under the user's config directory
// ($XDG_CONFIG_HOME/consult/token or ~/.config/consult/token).
type EnvStore struct{}

func (EnvStore) AccessToken(ctx context.Context) (string, error) {
	if token := os.Getenv("CONSULT_TOKEN"); token != "" {
		return token, nil
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", nil
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	tokenPath := filepath.Join(configDir, "consult", "token")
	data, err := os.ReadFile(tokenPath)
	if err != nil {
		return "", nil
	}

	return strings.TrimSpace(string(data)), nil
}
