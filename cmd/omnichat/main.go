package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	consolecmd "github.com/tinyland-inc/omnichat/cmd/omnichat/internal/console"
	gatewaycmd "github.com/tinyland-inc/omnichat/cmd/omnichat/internal/gateway"
	statuscmd "github.com/tinyland-inc/omnichat/cmd/omnichat/internal/status"
	versioncmd "github.com/tinyland-inc/omnichat/cmd/omnichat/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "omnichat",
		Short: "Multi-platform chat hub",
		Long:  "omnichat aggregates Telegram, Slack and Discord behind one hub with AI replies and cross-channel broadcast.",
	}

	rootCmd.AddCommand(
		gatewaycmd.NewCommand(),
		consolecmd.NewCommand(),
		statuscmd.NewCommand(),
		versioncmd.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
