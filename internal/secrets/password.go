package secrets

import (
	"errors"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService groups the app's secrets in the OS keychain.
	KeyringService = "jobharvest"

	passwordEnv = "JOBHARVEST_PASSWORD"
)

var ErrNoPassword = errors.New("login password not found (set it in keychain or JOBHARVEST_PASSWORD)")

// GetLoginPassword looks the account's password up in the keyring, then in
// JOBHARVEST_PASSWORD.
func GetLoginPassword(account string) (string, error) {
	if strings.TrimSpace(account) != "" {
		pw, err := keyring.Get(KeyringService, KeyringAccount(account))
		if err == nil && strings.TrimSpace(pw) != "" {
			return pw, nil
		}
	}
	if pw := os.Getenv(passwordEnv); strings.TrimSpace(pw) != "" {
		return pw, nil
	}
	return "", ErrNoPassword
}

func SetLoginPassword(account string, password string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(password) == "" {
		return errors.New("password is empty")
	}
	return keyring.Set(KeyringService, KeyringAccount(account), password)
}

func DeleteLoginPassword(account string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	return keyring.Delete(KeyringService, KeyringAccount(account))
}

func KeyringAccount(account string) string {
	return "jobharvest:login:" + strings.ToLower(strings.TrimSpace(account))
}
