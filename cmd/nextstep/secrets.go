package main

import (
	"bytes"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/Flagro/holosophos-erc3/pkg/config"
)

// secretNames are the credentials -store-secrets collects from the environment.
var secretNames = []string{ //nolint:gochecknoglobals // fixed list
	config.EnvPlatformAPIKey,
	config.EnvOpenAIAPIKey,
	config.EnvAnthropicAPIKey,
	config.EnvGoogleAPIKey,
}

// loadSecrets decrypts path into the in-memory store. A missing file leaves the
// environment as the only source.
func loadSecrets(path string) error {
	if path == "" || !config.SecretsFileExists(path) {
		return nil
	}
	password, err := secretsPassword(false)
	if err != nil {
		return err
	}
	secrets, err := config.DecryptSecretsFile(path, password)
	if err != nil {
		return err
	}
	config.SetDecryptedSecrets(secrets)
	fmt.Printf("🔐 Loaded %d secrets from %s\n", len(secrets), path)
	return nil
}

func storeSecrets(path string) error {
	secrets := make(map[string]string)
	for _, name := range secretNames {
		if v := os.Getenv(name); v != "" {
			secrets[name] = v
		}
	}
	if len(secrets) == 0 {
		return fmt.Errorf("none of %v is set", secretNames)
	}
	password, err := secretsPassword(true)
	if err != nil {
		return err
	}
	return config.EncryptSecretsFile(path, password, secrets)
}

// secretsPassword takes the password from the environment or prompts for it.
func secretsPassword(confirm bool) (string, error) {
	if password := os.Getenv(config.EnvSecretsPass); password != "" {
		return password, nil
	}
	if !term.IsTerminal(int(syscall.Stdin)) { //nolint:unconvert // int on every unix
		return "", fmt.Errorf("secrets file is encrypted: set %s or run interactively", config.EnvSecretsPass)
	}

	fmt.Print("Secrets password: ")
	password, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int on every unix
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if !confirm {
		return string(password), nil
	}

	fmt.Print("Confirm password: ")
	again, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int on every unix
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if !bytes.Equal(password, again) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(password), nil
}
