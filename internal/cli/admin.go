package cli

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcoot/snakesgame/internal/services/auth"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Operator commands (HTTP Basic auth)",
	}

	cmd.PersistentFlags().StringVar(&cfg.AdminUser, "user", cfg.AdminUser, "Admin username (env: SNAKES_ADMIN_USER)")
	cmd.PersistentFlags().StringVar(&cfg.AdminPassword, "password", cfg.AdminPassword, "Admin password (env: SNAKES_ADMIN_PASSWORD)")

	cmd.AddCommand(newAdminGamesCmd())
	cmd.AddCommand(newAdminGameCmd())
	cmd.AddCommand(newAdminHashPasswordCmd())

	return cmd
}

func newAdminGamesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "games",
		Short: "List every game, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result AdminGames

			if err := client.Get("/api/v1/admin/games", &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.Print(result)
			return nil
		},
	}
}

func newAdminGameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "game <code>",
		Short: "Show standings and recent moves for a game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := strings.ToUpper(args[0])

			var result AdminGame

			if err := client.Get(fmt.Sprintf("/api/v1/admin/games/%s", url.PathEscape(code)), &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.Print(result)
			return nil
		},
	}
}

func newAdminHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password for ADMIN_PASSWORD_HASH",
		Long:  "Reads a password from standard input and prints its bcrypt hash.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scanner := bufio.NewScanner(cmd.InOrStdin())
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return err
				}
				return errors.New("no password given on standard input")
			}

			hash, err := auth.HashPassword(strings.TrimRight(scanner.Text(), "\r"))
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
