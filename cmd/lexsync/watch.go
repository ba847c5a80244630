package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lingopad/lexsync"
)

var watchParent string

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch <kind>",
	Short: "Stream a group's records as they change",
	Long: `Watch subscribes to a kind and reprints the group whenever it changes:
local writes, writes from sibling processes sharing a spool directory, and
remote changes when a remote is configured. Ctrl-C to stop.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		kind, err := kindArg(args[0])
		if err != nil {
			fatal("Invalid kind", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		eng, err := newEngine(ctx)
		if err != nil {
			fatal("Failed to initialize engine", err)
		}
		defer eng.Close(ctx)

		if err := eng.Start(ctx); err != nil {
			fatal("Failed to start engine", err)
		}

		stop, err := eng.Subscribe(ctx, kind, watchParent, func(records []lexsync.Record) {
			fmt.Printf("--- %d record(s) ---\n", len(records))
			for _, rec := range records {
				fmt.Printf("%s  %-12s updated %s\n", rec.ID, rec.ParentRef, rec.UpdatedAt.Format("15:04:05"))
			}
		})
		if err != nil {
			fatal("Failed to subscribe", err)
		}
		defer stop()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		fmt.Println("\nStopping...")
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchParent, "parent", "", "Group to watch (empty watches the whole kind)")
}
