package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete <kind> <id>",
	Short: "Delete a record",
	Long: `Delete tombstones the record locally so the deletion survives offline
periods, then queues the remote delete.`,
	Args: cobra.ExactArgs(2),
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

		if err := eng.DeleteRecord(ctx, kind, args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: delete failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Deleted %s/%s\n", kind, args[1])
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
