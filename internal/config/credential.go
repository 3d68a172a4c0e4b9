package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrNoCredential = errors.New("no usable grafana credential")

// Credential authenticates calls against the Grafana API. Exactly one of Token or
// Username/Password is set, matching Mode.
type Credential struct {
	Mode     AuthMode
	Token    string
	Username string
	Password string
}

// String never prints the secret.
func (c Credential) String() string {
	switch c.Mode {
	case AuthModeBasic:
		return fmt.Sprintf("basic(%s)", c.Username)
	default:
		return "bearer(****)"
	}
}

// ResolveCredential reads the credential once. In token mode GRAFANA_TOKEN wins and the
// shared token file is the fallback.
func ResolveCredential(cfg GrafanaConfig) (Credential, error) {
	switch cfg.AuthMode {
	case AuthModeToken:
		token := strings.TrimSpace(cfg.Token)
		if token == "" && cfg.TokenFile != "" {
			data, err := os.ReadFile(cfg.TokenFile)
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return Credential{}, fmt.Errorf("failed to read token file %s: %w", cfg.TokenFile, err)
			}
			token = strings.TrimSpace(string(data))
		}
		if token == "" {
			return Credential{}, fmt.Errorf("%w: set GRAFANA_TOKEN or provide %s", ErrNoCredential, cfg.TokenFile)
		}
		return Credential{Mode: AuthModeToken, Token: token}, nil
	case AuthModeBasic:
		if cfg.AdminUser == "" || cfg.AdminPassword == "" {
			return Credential{}, fmt.Errorf("%w: GRAFANA_ADMIN_USER and GRAFANA_ADMIN_PASSWORD are required in basic mode", ErrNoCredential)
		}
		return Credential{Mode: AuthModeBasic, Username: cfg.AdminUser, Password: cfg.AdminPassword}, nil
	default:
		return Credential{}, fmt.Errorf("unknown auth mode %q", cfg.AuthMode)
	}
}
