// Package board resolves moves against a snakes and ladders board.
// Everything here is pure: no storage, no clocks.
package board

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mcoot/snakesgame/internal/dependencies/random"
	"github.com/mcoot/snakesgame/internal/model"
)

const (
	// DieFaces is the number of faces on the die
	DieFaces = 6

	// MinSize and MaxSize bound the number of cells on a board
	MinSize = 10
	MaxSize = 1000

	// DefaultRowWidth is the row width used to lay out the default board
	DefaultRowWidth = 10
)

// MoveResult is the outcome of applying one roll
type MoveResult struct {
	NewPosition int
	Effect      *model.MoveEffect
	IsWinner    bool
}

// Coordinates locates a cell on the serpentine grid.
// Row 0 is the bottom row.
type Coordinates struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// RollDie returns a uniformly distributed face in [1, DieFaces]
func RollDie(rnd random.Random) int {
	return rnd.Intn(DieFaces) + 1
}

// ApplyMove resolves a roll from the given position.
// Overshooting the last cell forfeits the roll.
func ApplyMove(position, roll int, cfg model.BoardConfig) MoveResult {
	target := position + roll
	if target > cfg.Size {
		return MoveResult{NewPosition: position}
	}
	if target == cfg.Size {
		return MoveResult{NewPosition: target, IsWinner: true}
	}

	sl, ok := cfg.Lookup(target)
	if !ok {
		return MoveResult{NewPosition: target}
	}
	return MoveResult{
		NewPosition: sl.End,
		Effect:      &model.MoveEffect{Kind: sl.Kind, From: target, To: sl.End},
		IsWinner:    sl.End == cfg.Size,
	}
}

// ValidateBoard returns a description of every problem with the board.
// An empty result means the board is valid.
func ValidateBoard(cfg model.BoardConfig) []string {
	var problems []string

	if cfg.Size < MinSize || cfg.Size > MaxSize {
		problems = append(problems, fmt.Sprintf("board size %d is invalid (must be between %d and %d)", cfg.Size, MinSize, MaxSize))
	}

	seen := make(map[int]int)
	for _, sl := range cfg.SnakesAndLadders {
		seen[sl.Start]++

		label := string(sl.Kind)
		if sl.Kind != model.EffectSnake && sl.Kind != model.EffectLadder {
			problems = append(problems, fmt.Sprintf("unknown type %q at position %d", sl.Kind, sl.Start))
			label = "entry"
		}
		if sl.Start < 2 || sl.Start > cfg.Size-1 {
			problems = append(problems, fmt.Sprintf("%s start position %d is invalid (must be between 2 and %d)", label, sl.Start, cfg.Size-1))
		}
		if sl.End < 1 || sl.End > cfg.Size {
			problems = append(problems, fmt.Sprintf("%s end position %d is invalid (must be between 1 and %d)", label, sl.End, cfg.Size))
		}
		if sl.Kind == model.EffectSnake && sl.End >= sl.Start {
			problems = append(problems, fmt.Sprintf("snake at %d must go down (end %d >= start %d)", sl.Start, sl.End, sl.Start))
		}
		if sl.Kind == model.EffectLadder && sl.End <= sl.Start {
			problems = append(problems, fmt.Sprintf("ladder at %d must go up (end %d <= start %d)", sl.Start, sl.End, sl.Start))
		}
	}

	var duplicates []int
	for start, count := range seen {
		if count > 1 {
			duplicates = append(duplicates, start)
		}
	}
	if len(duplicates) > 0 {
		sort.Ints(duplicates)
		cells := make([]string, len(duplicates))
		for i, d := range duplicates {
			cells[i] = fmt.Sprint(d)
		}
		problems = append(problems, fmt.Sprintf("duplicate start positions found: %s", strings.Join(cells, ", ")))
	}

	return problems
}

// CellToCoordinates maps a 1-based position onto a boustrophedon grid.
// Even rows run left to right, odd rows right to left.
func CellToCoordinates(position, rowWidth int) Coordinates {
	zero := position - 1
	row := zero / rowWidth
	col := zero % rowWidth
	if row%2 == 1 {
		col = rowWidth - 1 - col
	}
	return Coordinates{Row: row, Col: col}
}

// DefaultConfig returns the classic 100 cell board
func DefaultConfig() model.BoardConfig {
	return model.BoardConfig{
		Size: 100,
		SnakesAndLadders: []model.SnakeOrLadder{
			{Start: 2, End: 38, Kind: model.EffectLadder},
			{Start: 7, End: 14, Kind: model.EffectLadder},
			{Start: 8, End: 31, Kind: model.EffectLadder},
			{Start: 15, End: 26, Kind: model.EffectLadder},
			{Start: 21, End: 42, Kind: model.EffectLadder},
			{Start: 28, End: 84, Kind: model.EffectLadder},
			{Start: 36, End: 44, Kind: model.EffectLadder},
			{Start: 51, End: 67, Kind: model.EffectLadder},
			{Start: 71, End: 91, Kind: model.EffectLadder},
			{Start: 78, End: 98, Kind: model.EffectLadder},
			{Start: 16, End: 6, Kind: model.EffectSnake},
			{Start: 46, End: 25, Kind: model.EffectSnake},
			{Start: 49, End: 11, Kind: model.EffectSnake},
			{Start: 62, End: 19, Kind: model.EffectSnake},
			{Start: 64, End: 60, Kind: model.EffectSnake},
			{Start: 74, End: 53, Kind: model.EffectSnake},
			{Start: 89, End: 68, Kind: model.EffectSnake},
			{Start: 92, End: 88, Kind: model.EffectSnake},
			{Start: 95, End: 75, Kind: model.EffectSnake},
			{Start: 99, End: 80, Kind: model.EffectSnake},
		},
	}
}
