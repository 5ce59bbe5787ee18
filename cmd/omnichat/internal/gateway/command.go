// Package gateway implements the long-running service command.
package gateway

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/omnichat/cmd/omnichat/internal"
	"github.com/tinyland-inc/omnichat/pkg/adapters"
	"github.com/tinyland-inc/omnichat/pkg/config"
	"github.com/tinyland-inc/omnichat/pkg/gateway"
	"github.com/tinyland-inc/omnichat/pkg/hub"
	"github.com/tinyland-inc/omnichat/pkg/logger"
	"github.com/tinyland-inc/omnichat/pkg/responder"
	"github.com/tinyland-inc/omnichat/pkg/schedule"

	_ "github.com/tinyland-inc/omnichat/pkg/adapters/discord"
	_ "github.com/tinyland-inc/omnichat/pkg/adapters/slack"
	_ "github.com/tinyland-inc/omnichat/pkg/adapters/telegram"
)

const shutdownTimeout = 10 * time.Second

func NewCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Run the chat hub service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if debug {
				logger.SetLevel(logger.DEBUG)
			}
			cfg, err := internal.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	return cmd
}

func run(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.New()

	connected := 0
	for _, platform := range enabledPlatforms(cfg) {
		integ, err := adapters.New(platform, cfg)
		if err != nil {
			logger.ErrorCF("gateway", "Integration setup failed", map[string]any{
				"platform": platform,
				"error":    err.Error(),
			})
			continue
		}
		if err := h.RegisterIntegration(integ); err != nil {
			logger.ErrorCF("gateway", "Integration registration failed", map[string]any{
				"platform": platform,
				"error":    err.Error(),
			})
			continue
		}
		// A failed connect leaves the integration registered so its
		// health shows up on the API; it does not stop the others.
		if err := integ.Connect(ctx); err != nil {
			logger.ErrorCF("gateway", "Integration connect failed", map[string]any{
				"platform": platform,
				"error":    err.Error(),
			})
			continue
		}
		connected++
	}
	logger.InfoCF("gateway", "Integrations started", map[string]any{"connected": connected})

	if cfg.Responder.Enabled {
		agent, err := responder.New(cfg.Responder)
		if err != nil {
			return fmt.Errorf("setting up responder: %w", err)
		}
		h.RegisterAgent(hub.GlobalAgentKey, agent)
		logger.InfoCF("gateway", "Responder registered", map[string]any{"provider": cfg.Responder.Provider})
	}

	scheduler, err := schedule.New(h, cfg.Broadcasts)
	if err != nil {
		return err
	}
	scheduler.Start(ctx)

	server := gateway.New(h, cfg.Gateway.Host, cfg.Gateway.Port)
	if err := server.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	logger.InfoC("gateway", "Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	scheduler.Stop()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.WarnCF("gateway", "Server shutdown error", map[string]any{"error": err.Error()})
	}
	h.Close(shutdownCtx)
	return nil
}

func enabledPlatforms(cfg *config.Config) []string {
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
