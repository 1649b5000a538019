package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/services/board"
)

func newBoardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Inspect board layouts without a server",
	}

	cmd.AddCommand(newBoardValidateCmd())
	cmd.AddCommand(newBoardShowCmd())

	return cmd
}

func newBoardValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a JSON board layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgBoard, err := readBoardFile(args[0])
			if err != nil {
				return err
			}

			view := checkBoard(cfgBoard)
			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			if view.Valid && cfg.Output != "json" {
				out.PrintMessage(fmt.Sprintf("Board is valid: %d cells, %d snakes and ladders",
					cfgBoard.Size, len(cfgBoard.SnakesAndLadders)))
				return nil
			}
			out.Print(view)
			if !view.Valid {
				return fmt.Errorf("%w: %d problem(s)", model.ErrInvalidBoard, len(view.Problems))
			}
			return nil
		},
	}
}

func newBoardShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [file]",
		Short: "Draw a board layout (the default board if no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgBoard := board.DefaultConfig()
			if len(args) == 1 {
				var err error
				if cfgBoard, err = readBoardFile(args[0]); err != nil {
					return err
				}
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.Print(checkBoard(cfgBoard))
			return nil
		},
	}
}

func checkBoard(b model.BoardConfig) BoardView {
	problems := board.ValidateBoard(b)
	return BoardView{Board: b, Valid: len(problems) == 0, Problems: problems}
}

func readBoardFile(path string) (model.BoardConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.BoardConfig{}, fmt.Errorf("failed to read board: %w", err)
	}

	var b model.BoardConfig
	if err := json.Unmarshal(data, &b); err != nil {
		return model.BoardConfig{}, fmt.Errorf("failed to parse board %s: %w", path, err)
	}
	return b, nil
}
