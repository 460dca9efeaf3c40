// adoptctl drives the pet-adoption session kit from the command line: it
// logs roles in and out, switches the acting role, and calls domain
// endpoints through the session-aware gateway.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "adoptctl",
		Short:         "Pet-adoption session client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newSwitchRoleCmd(),
		newRefreshCmd(),
		newProfileCmd(),
		newPetsCmd(),
	)
	return root
}
