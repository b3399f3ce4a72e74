package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

const version = "v0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of apirun",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("apirun %s\n", version)
	},
}
