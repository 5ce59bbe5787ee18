// Package status reports local configuration and gateway liveness.
package status

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/omnichat/cmd/omnichat/internal"
	"github.com/tinyland-inc/omnichat/pkg/config"
)

func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and gateway status",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := internal.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			fmt.Println("Config:", internal.GetConfigPath())

			platforms := enabledSummary(cfg)
			if len(platforms) == 0 {
				fmt.Println("Platforms: none enabled")
			} else {
				fmt.Println("Platforms:", platforms)
			}

			if cfg.Responder.Enabled {
				fmt.Printf("Responder: %s (%s)\n", cfg.Responder.Provider, cfg.Responder.Model)
			} else {
				fmt.Println("Responder: disabled")
			}
			fmt.Println("Broadcasts:", len(cfg.Broadcasts))

			addr := net.JoinHostPort(cfg.Gateway.Host, strconv.Itoa(cfg.Gateway.Port))
			fmt.Printf("Gateway:   %s (%s)\n", addr, probe(addr))
			return nil
		},
	}
}

func enabledSummary(cfg *config.Config) []string {
	var out []string
	if cfg.Channels.Telegram.Enabled {
		out = append(out, "telegram")
	}
	if cfg.Channels.Slack.Enabled {
		out = append(out, "slack")
	}
	if cfg.Channels.Discord.Enabled {
		out = append(out, "discord")
	}
	return out
}

func probe(addr string) string {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + addr + "/health")
	if err != nil {
		return "not running"
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return "running"
	}
	return fmt.Sprintf("unhealthy, HTTP %d", resp.StatusCode)
}
