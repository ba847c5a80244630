package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	listJSON   bool
	listParent string
)

var listCmd = &cobra.Command{
	Use:   "list <kind>",
	Short: "List the live records of a kind",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		kind, err := kindArg(args[0])
		if err != nil {
			fatal("Invalid kind", err)
		}

		ctx := context.Background()
		eng, err := newEngine(ctx)
		if err != nil {
			fatal("Failed to initialize engine", err)
		}
		defer eng.Close(ctx)

		records, err := eng.ListRecords(ctx, kind, listParent)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: list failed: %v\n", err)
			os.Exit(1)
		}

		if listJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(records); err != nil {
				fatal("Failed to encode JSON", err)
			}
			return
		}

		for _, rec := range records {
			status := "synced"
			if rec.Pending() {
				status = "pending"
			}
			fmt.Printf("%s  %-12s %-8s updated %s\n", rec.ID, rec.ParentRef, status, rec.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	listCmd.Flags().StringVar(&listParent, "parent", "", "Filter by group")
}
