package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jward/gofacts/internal/provision"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the gofacts version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), provision.CurrentVersion())
	},
}
