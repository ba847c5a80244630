package main

import (
	"context"
	"fmt"
	"os"

	"github.com/lingopad/lexsync/pkg/core"
	"github.com/spf13/cobra"
)

// resyncCmd represents the resync command
var resyncCmd = &cobra.Command{
	Use:   "resync [kind]",
	Short: "Reconcile local and remote state end to end",
	Long: `Resync fetches every remote document of a kind, resolves conflicts per
record, rewrites the local view and rebuilds the metadata ledger. With no
argument, every kind is reconciled. The recovery path when counts drift.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		eng, err := newEngine(ctx)
		if err != nil {
			fatal("Failed to initialize engine", err)
		}
		defer eng.Close(ctx)

		kinds := core.Kinds
		if len(args) == 1 {
			kind, err := kindArg(args[0])
			if err != nil {
				fatal("Invalid kind", err)
			}
			kinds = []core.Kind{kind}
		}

		for _, kind := range kinds {
			fmt.Printf("Resyncing %s...\n", kind)
			if err := eng.ForceFullResync(ctx, kind); err != nil {
				fmt.Fprintf(os.Stderr, "Error: resync %s failed: %v\n", kind, err)
				os.Exit(1)
			}
		}
		fmt.Println("Resync completed successfully.")
	},
}

func init() {
	rootCmd.AddCommand(resyncCmd)
}
