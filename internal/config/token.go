package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const tokenEnv = "DERIV_TOKEN"

// ErrNoToken means no credential was found for the requested account.
var ErrNoToken = errors.New("no api token configured")

// TokenLookup returns the API token for account. DERIV_TOKEN_<ACCOUNT> wins,
// then the venue.accounts entry, then DERIV_TOKEN. A .env file is loaded
// best-effort first.
func (c *Config) TokenLookup(account string) (string, error) {
	_ = godotenv.Load()
	if account == "" {
		account = c.Venue.Account
	}
	if account != "" {
		if v := os.Getenv(accountEnv(account)); v != "" {
			return v, nil
		}
		if v := c.Venue.Accounts[account]; v != "" {
			return v, nil
		}
	}
	if v := os.Getenv(tokenEnv); v != "" {
		return v, nil
	}
	if account == "" {
		return "", ErrNoToken
	}
	return "", fmt.Errorf("%w for account %s: set %s or %s", ErrNoToken, account, accountEnv(account), tokenEnv)
}

func accountEnv(account string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, account)
	return tokenEnv + "_" + name
}
