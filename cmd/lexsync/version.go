package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lingopad/lexsync"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of lexsync",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lexsync version %s\n", strings.TrimSpace(lexsync.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
