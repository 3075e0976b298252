package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"goalchat/config"
)

var (
	// Global flags
	serverURL string
	local     bool
	raw       bool
	verbose   bool

	settings config.Config
	logger   *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "goalchat",
	Short: "Goal-oriented AI assistant in the terminal",
	Long: `goalchat is a chat client for the goalchat server.

Conversations and your active goal are loaded from the server (or, with
--local, from an in-process store) and every turn is sent to the assistant
together with your goal, roadmap and recent history.

Run without arguments to start the interactive chat.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		settings = config.Load()
		if serverURL == "" {
			serverURL = settings.ServerURL
		}
		if !verbose {
			settings.LogLevel = "warn"
		} else {
			settings.LogLevel = "debug"
		}
		l, err := config.NewLogger(settings)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runChat,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "goalchat server URL (default $SERVER_URL)")
	rootCmd.PersistentFlags().BoolVar(&local, "local", false, "run against an in-process store and assistant instead of a server")
	rootCmd.PersistentFlags().BoolVar(&raw, "raw", false, "print replies as plain text instead of rendered markdown")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(chatCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
