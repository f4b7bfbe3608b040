package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version can be overwritten at link time with -ldflags "-X", e.g. with a
// git-describe tag.
var Version = "v0.0.0-dev"

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display blockidxd version",
	Long:  `Display blockidxd version.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("blockidxd version", Version)
	},
}
