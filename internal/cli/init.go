package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/pdigest/internal/config"
)

const exampleEnvFile = ".env.example"

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with example files",
	RunE:  initAction,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func initAction(_ *cobra.Command, _ []string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	created := 0
	files := []struct {
		name string
		data string
		perm os.FileMode
	}{
		{config.DefaultConfigFile, exampleConfig, 0o644},
		{exampleEnvFile, exampleEnv, 0o600},
	}
	for _, f := range files {
		wrote, err := writeIfNotExists(filepath.Join(configDir, f.name), []byte(f.data), f.perm)
		if err != nil {
			return err
		}
		if wrote {
			created++
		}
	}

	if created == 0 {
		fmt.Printf("Config directory %s already initialized.\n", configDir)
	} else {
		fmt.Printf("Initialized %s with %d files.\n", configDir, created)
		fmt.Printf("Set graph.group_id in %s and copy %s to %s.\n",
			config.DefaultConfigFile, exampleEnvFile, config.DefaultEnvFile)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(path string, data []byte, perm os.FileMode) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# pdigest configuration

graph:
  group_id: ""
  version: v19.0
  # secrets are read from these env vars (or .env next to this file)
  app_id_env: FACEBOOK_APP_ID
  app_secret_env: FACEBOOK_APP_SECRET
  requests_per_second: 5
  timeout: 30s

embeds:
  slideshare_oembed_url: http://www.slideshare.net/api/oembed/2
  timeout: 10s
  cache_ttl: 24h
  workers: 4
  requests_per_second: 2

storage:
  # leave empty to disable the oEmbed markup cache
  path: .pdigest/oembed.db
  retain_days: 30

digest:
  timezone: "UTC"
  format: terminal

server:
  addr: ":8080"
  cors_origins: ["*"]

privacy:
  redact:
    enabled: false
    patterns: []

log:
  level: info
  format: text
`

const exampleEnv = `FACEBOOK_APP_ID=
FACEBOOK_APP_SECRET=
`
