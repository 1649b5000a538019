package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server and storage health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result HealthResult

			// A failing storage check answers 503, which Get reports as an error
			if err := client.Get("/api/v1/health", &result); err != nil {
				return fmt.Errorf("server unhealthy: %w", err)
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.Print(result)
			return nil
		},
	}
}
