// Package auth resolves and validates the Gemini API key.
package auth

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	credentialDir  = ".mystic-studio"
	credentialFile = "credentials.gpg"
)

// Environment variables checked for the key, in order.
var keyEnvVars = []string{"GEMINI_API_KEY", "API_KEY"}

// ErrNoAPIKey is returned when no key source yields a key.
var ErrNoAPIKey = errors.New("API key not found. Set GEMINI_API_KEY (or API_KEY) or create ~/" + credentialDir + "/" + credentialFile)

// GetAPIKey retrieves the Gemini API key from available sources.
// Priority order:
//  1. GEMINI_API_KEY environment variable
//  2. API_KEY environment variable
//  3. GPG-encrypted file at ~/.mystic-studio/credentials.gpg
func GetAPIKey() (string, error) {
	for _, name := range keyEnvVars {
		if key := strings.TrimSpace(os.Getenv(name)); key != "" {
			log.Debug().Str("var", name).Msg("Using API key from environment variable")
			return key, nil
		}
	}

	key, err := getFromGPG()
	if err == nil && key != "" {
		log.Debug().Msg("Using API key from GPG encrypted file")
		return key, nil
	}

	log.Debug().Err(err).Msg("No API key in environment or GPG credentials")
	return "", ErrNoAPIKey
}

// getFromGPG decrypts the API key from the GPG-encrypted credentials file.
func getFromGPG() (string, error) {
	credPath, err := getCredentialPath()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(credPath); os.IsNotExist(err) {
		return "", fmt.Errorf("GPG credentials file not found at %s", credPath)
	}

	log.Debug().Str("file", credPath).Msg("Decrypting GPG credentials")

	args := []string{"--decrypt", "--quiet"}
	if passphrasePath, ok := getPassphrasePath(); ok {
		args = append(args, "--pinentry-mode", "loopback", "--passphrase-file", passphrasePath)
	}
	args = append(args, credPath)

	output, err := exec.Command("gpg", args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("GPG decryption failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("GPG decryption failed: %w", err)
	}

	return strings.TrimSpace(string(output)), nil
}

// getCredentialPath returns the full path to the credentials file.
func getCredentialPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, credentialDir, credentialFile), nil
}

// getPassphrasePath looks for a .gpg-passphrase file next to the credentials
// file, for non-interactive decryption. Files readable by group or others
// are ignored.
func getPassphrasePath() (string, bool) {
	credPath, err := getCredentialPath()
	if err != nil {
		return "", false
	}
	path := filepath.Join(filepath.Dir(credPath), ".gpg-passphrase")

	fi, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	if mode := fi.Mode().Perm(); mode&0o077 != 0 {
		log.Warn().
			Str("passphrase_file", path).
			Str("permissions", fmt.Sprintf("%04o", mode)).
			Msg("Passphrase file has insecure permissions (should be 0600); skipping")
		return "", false
	}
	return path, true
}
