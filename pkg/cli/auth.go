package cli

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/nwflabs/nwf/pkg/auth"
	"github.com/urfave/cli/v2"
	"github.com/zalando/go-keyring"
)

const (
	keyFileName    = "api_key"
	keyringService = "nwf"
	keyringUser    = "api-key"
)

var (
	clearKeyFlag = &cli.BoolFlag{
		Name:  "clear",
		Usage: "Remove the stored API key",
	}

	authCmd = &cli.Command{
		Name:            "auth",
		HideHelpCommand: true,
		Usage:           "Store the market-data API key used by import",
		Action:          cmdAuth,
		Flags: []cli.Flag{
			clearKeyFlag,
		},
	}
)

func cmdAuth(c *cli.Context) error {
	if c.Bool(clearKeyFlag.Name) {
		return clearAPIKey()
	}

	fmt.Print("Paste your market-data API key and hit enter:\n> ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading user input: %w", err)
	}

	key := strings.TrimSpace(line)
	if key == "" {
		return errors.New("no key provided")
	}

	cfg := getConfig(c)

	status, err := auth.CheckKey(cfg.Conf.API.URL, key)
	if err != nil {
		return fmt.Errorf("verifying key: %w", err)
	}

	if err := saveAPIKey(key); err != nil {
		return fmt.Errorf("saving key: %w", err)
	}

	fmt.Printf("API key saved to OS keychain (plan: %s)\n", status.Plan)
	return nil
}

func saveAPIKey(key string) error {
	if err := keyring.Set(keyringService, keyringUser, key); err != nil {
		slog.Warn("keychain unavailable, falling back to file", "error", err)
		return saveAPIKeyFile(key)
	}

	// Clean up legacy file if it exists
	legacyPath := path.Join(getHomeDir(), keyFileName)
	os.Remove(legacyPath)

	return nil
}

func getAPIKey() (string, error) {
	// Try keychain first
	key, err := keyring.Get(keyringService, keyringUser)
	if err == nil && key != "" {
		return key, nil
	}

	// Fall back to file
	key, err = getAPIKeyFile()
	if err != nil {
		return "", err
	}

	// Migrate to keychain
	if migrateErr := keyring.Set(keyringService, keyringUser, key); migrateErr == nil {
		slog.Info("migrated API key from file to OS keychain")
		legacyPath := path.Join(getHomeDir(), keyFileName)
		os.Remove(legacyPath)
	}

	return key, nil
}

func clearAPIKey() error {
	if err := keyring.Delete(keyringService, keyringUser); err != nil {
		slog.Debug("no keychain entry to remove", "error", err)
	}

	keyPath := path.Join(getHomeDir(), keyFileName)
	if err := os.Remove(keyPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing key file: %w", err)
	}

	fmt.Println("API key removed")
	return nil
}

func saveAPIKeyFile(key string) error {
	keyPath := path.Join(getHomeDir(), keyFileName)
	return os.WriteFile(keyPath, []byte(key), 0600)
}

func getAPIKeyFile() (string, error) {
	keyPath := path.Join(getHomeDir(), keyFileName)
	b, err := os.ReadFile(keyPath)
	if err != nil {
		return "", fmt.Errorf("reading key file %s: %w", keyPath, err)
	}
	return strings.TrimSpace(string(b)), nil
}
