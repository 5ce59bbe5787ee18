// Package version prints build metadata.
package version

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/omnichat/cmd/omnichat/internal"
)

func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("omnichat %s (commit %s, built %s, %s)\n",
				internal.Version, internal.Commit, internal.Date, runtime.Version())
		},
	}
}
