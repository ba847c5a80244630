package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusJSON bool

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pending queues, ledger counts and consistency",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		eng, err := newEngine(ctx)
		if err != nil {
			fatal("Failed to initialize engine", err)
		}
		defer eng.Close(ctx)

		state := eng.State()
		discrepancy, err := eng.Verify(ctx)
		if err != nil {
			fatal("Consistency check failed", err)
		}

		if statusJSON {
			out := map[string]any{
				"state":       state,
				"discrepancy": discrepancy,
			}
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(out); err != nil {
				fatal("Failed to encode JSON", err)
			}
			return
		}

		raw, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			fatal("Failed to render state", err)
		}
		fmt.Println(string(raw))
		if discrepancy == "" {
			fmt.Println("Ledger: consistent")
		} else {
			fmt.Printf("Ledger: INCONSISTENT (%s)\n", discrepancy)
			fmt.Println("Tip: run 'lexsync resync' to rebuild local state from the remote store.")
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output in JSON format")
}
