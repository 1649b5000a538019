package cli

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcoot/snakesgame/internal/api/request"
)

func newGameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "game",
		Short: "Game commands",
	}

	cmd.AddCommand(newGameCreateCmd())
	cmd.AddCommand(newGameGetCmd())

	return cmd
}

func newGameCreateCmd() *cobra.Command {
	var name, boardFile string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new game",
		Long: `Create a new game with you as its creator.

The game uses the server's default board unless --board names a JSON
board layout, e.g. {"size": 100, "snakesAndLadders": [{"start": 2, "end": 38, "type": "ladder"}]}`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := request.CreateGameRequest{CreatorName: name}
			if boardFile != "" {
				board, err := readBoardFile(boardFile)
				if err != nil {
					return err
				}
				req.BoardConfig = &board
			}

			var result GameView

			if err := client.Post("/api/v1/games", req, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Your player name (required)")
	cmd.Flags().StringVar(&boardFile, "board", "", "Path to a JSON board layout")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newGameGetCmd() *cobra.Command {
	var showBoard bool

	cmd := &cobra.Command{
		Use:   "get <code>",
		Short: "Get a game and its players",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := strings.ToUpper(args[0])

			var result GameView

			if err := client.Get(fmt.Sprintf("/api/v1/games/%s", url.PathEscape(code)), &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.Print(result)
			if showBoard && cfg.Output != "json" {
				out.Print(BoardView{Board: result.Game.Board, Valid: true, players: result.Players})
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showBoard, "board", false, "Draw the board with player positions")

	return cmd
}
