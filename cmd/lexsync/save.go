package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	saveID     string
	saveParent string
)

// saveCmd represents the save command
var saveCmd = &cobra.Command{
	Use:   "save <kind> <payload-json>",
	Short: "Save a record locally and queue it for remote push",
	Long: `Save normalizes the payload into a record, persists it locally and queues
it for the next remote flush. Works offline; the record syncs later.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		kind, err := kindArg(args[0])
		if err != nil {
			fatal("Invalid kind", err)
		}

		var payload map[string]any
		if err := json.Unmarshal([]byte(args[1]), &payload); err != nil {
			fatal("Invalid payload JSON", err)
		}

		ctx := context.Background()
		eng, err := newEngine(ctx)
		if err != nil {
			fatal("Failed to initialize engine", err)
		}
		defer eng.Close(ctx)

		raw := map[string]any{
			"payload": payload,
		}
		if saveID != "" {
			raw["id"] = saveID
		}
		if saveParent != "" {
			raw["parentRef"] = saveParent
		}

		rec, err := eng.SaveRecord(ctx, kind, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: save failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Saved %s/%s (updated %s)\n", rec.Kind, rec.ID, rec.UpdatedAt.Format("2006-01-02 15:04:05"))
	},
}

func init() {
	rootCmd.AddCommand(saveCmd)
	saveCmd.Flags().StringVar(&saveID, "id", "", "Record id (generated when empty)")
	saveCmd.Flags().StringVar(&saveParent, "parent", "", "Group the record belongs to")
}
