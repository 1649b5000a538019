package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfg    *Config
	client *Client
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "snakes",
		Short: "CLI tool for the snakes and ladders server",
		Long: `snakes is a CLI tool for interacting with a snakes and ladders server.

It can create and inspect games, browse the admin views, check board
layouts offline, and join a game over WebSocket to watch or play.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			client = NewClient(cfg.ServerURL)
			if cfg.AdminUser != "" {
				client.SetBasicAuth(cfg.AdminUser, cfg.AdminPassword)
			}
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Server URL (env: SNAKES_SERVER)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json (env: SNAKES_OUTPUT)")

	// Add subcommands
	rootCmd.AddCommand(newHealthCmd())
	rootCmd.AddCommand(newGameCmd())
	rootCmd.AddCommand(newAdminCmd())
	rootCmd.AddCommand(newBoardCmd())
	rootCmd.AddCommand(newPlayCmd())
	rootCmd.AddCommand(newWatchCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
