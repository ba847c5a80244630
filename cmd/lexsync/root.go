package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lingopad/lexsync"
)

var (
	verbose    bool
	configPath string
	dataDir    string
	adapter    string
	remoteURL  string
	token      string
	userID     string
	spoolDir   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "lexsync",
	Short: "An offline-first sync engine for notes, words and chats",
	Long: `lexsync keeps a local record store and a remote document store convergent.
Writes land locally first and always succeed offline; a durable queue pushes
them remotely in batches, with last-write-wins conflict resolution.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)

		return applyConfigFile()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "Local store location (directory or sqlite file)")
	rootCmd.PersistentFlags().StringVar(&adapter, "adapter", "fs", "Local store adapter: fs or sqlite")
	rootCmd.PersistentFlags().StringVar(&remoteURL, "remote", "", "Remote store base URL (empty means local-only)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Bearer token for the remote store")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "Acting user id")
	rootCmd.PersistentFlags().StringVar(&spoolDir, "spool", "", "Shared spool directory for cross-process events")
}

// newEngine assembles an engine from the effective flag and config values.
func newEngine(ctx context.Context) (*lexsync.Engine, error) {
	uri := dataDir
	if uri == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		uri = filepath.Join(cwd, ".lexsync")
	}

	opts := []lexsync.Option{
		lexsync.WithAdapter(adapter),
		lexsync.WithLogger(slog.Default()),
	}
	if remoteURL != "" {
		opts = append(opts, lexsync.WithRemote(remoteURL, token))
	}
	if userID != "" {
		opts = append(opts, lexsync.WithUser(userID))
	}
	if spoolDir != "" {
		opts = append(opts, lexsync.WithSpoolDir(spoolDir))
	}
	return lexsync.New(ctx, uri, opts...)
}

// kindArg validates the kind positional argument common to most commands.
func kindArg(arg string) (lexsync.Kind, error) {
	kind := lexsync.Kind(arg)
	if !kind.Valid() {
		return "", fmt.Errorf("unknown kind %q (expected notes, words or chats)", arg)
	}
	return kind, nil
}
