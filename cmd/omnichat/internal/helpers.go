// Package internal carries shared wiring for the omnichat subcommands.
package internal

import (
	"os"
	"path/filepath"

	"github.com/tinyland-inc/omnichat/pkg/config"
)

// Build metadata, set via -ldflags at release time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// GetConfigPath resolves the config file location. OMNICHAT_CONFIG
// overrides the default ~/.omnichat/config.json.
func GetConfigPath() string {
	if path := os.Getenv("OMNICHAT_CONFIG"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".omnichat", "config.json")
}

func LoadConfig() (*config.Config, error) {
	return config.LoadConfig(GetConfigPath())
}
