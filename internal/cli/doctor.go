package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/pdigest/internal/auth"
	"github.com/ppiankov/pdigest/internal/config"
	"github.com/ppiankov/pdigest/internal/store"
)

const doctorTokenTimeout = 15 * time.Second

var doctorOffline bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, secrets, cache and Graph API access",
	RunE:  doctorAction,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorOffline, "offline", false, "skip the token exchange check")
	rootCmd.AddCommand(doctorCmd)
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	ok := true

	// Config dir
	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printCheck(false, "config directory %s", configDir)
		ok = false
	} else {
		printCheck(true, "config directory %s", configDir)
	}

	// Config file
	cfg, err := loadConfig()
	if err != nil {
		printCheck(false, "%s: %v", config.DefaultConfigFile, err)
		return fmt.Errorf("some checks failed")
	}
	printCheck(true, "%s (group %s, timezone %s, format %s)",
		config.DefaultConfigFile, cfg.Graph.GroupID, cfg.Digest.Timezone, cfg.Digest.Format)

	// Secrets
	secrets := true
	if cfg.Graph.AppID == "" {
		printCheck(false, "app id: %s is not set", cfg.Graph.AppIDEnv)
		secrets = false
	} else {
		printCheck(true, "app id from %s", cfg.Graph.AppIDEnv)
	}
	if cfg.Graph.AppSecret == "" {
		printCheck(false, "app secret: %s is not set", cfg.Graph.AppSecretEnv)
		secrets = false
	} else {
		printCheck(true, "app secret from %s", cfg.Graph.AppSecretEnv)
	}
	ok = ok && secrets

	// oEmbed cache
	if cfg.Storage.Path == "" {
		printInfo("oembed cache disabled (storage.path is empty)")
	} else if db, err := store.Open(cfg.Storage.Path); err != nil {
		printCheck(false, "oembed cache: %v", err)
		ok = false
	} else {
		stats, err := db.Stats(commandContext(cmd))
		_ = db.Close()
		if err != nil {
			printCheck(false, "oembed cache: %v", err)
			ok = false
		} else {
			printCheck(true, "oembed cache %s (%d entries)", cfg.Storage.Path, stats.Entries)
		}
	}

	// Token exchange
	switch {
	case doctorOffline:
		printInfo("token exchange skipped (--offline)")
	case !secrets:
		printInfo("token exchange skipped (missing secrets)")
	default:
		if err := checkToken(commandContext(cmd), cfg); err != nil {
			printCheck(false, "token exchange: %v", err)
			ok = false
		} else {
			printCheck(true, "token exchange with %s", cfg.Graph.BaseURL)
		}
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

func checkToken(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(ctx, doctorTokenTimeout)
	defer cancel()

	p, err := auth.NewProvider(cfg.Graph.BaseURL, auth.WithHTTPClient(&http.Client{Timeout: cfg.Graph.Timeout.Duration}))
	if err != nil {
		return err
	}
	_, err = p.Token(ctx, cfg.Graph.AppID, cfg.Graph.AppSecret)
	return err
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Printf("[INFO] %s\n", fmt.Sprintf(format, args...))
}
