package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Flush pending records to the remote store",
	Long: `Sync drains the durable pending queue: every record saved or deleted
while offline is pushed to the remote store in batches.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		eng, err := newEngine(ctx)
		if err != nil {
			fatal("Failed to initialize engine", err)
		}
		defer eng.Close(ctx)

		fmt.Println("Syncing...")
		if err := eng.FlushAll(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: sync failed: %v\n", err)
			fmt.Println("Tip: Ensure a remote is configured (--remote) and you are online.")
			os.Exit(1)
		}
		fmt.Println("Sync completed successfully.")
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
