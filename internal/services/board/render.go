package board

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/mcoot/snakesgame/internal/model"
)

// Render draws the board as text with the top row first.
// Cells show their number, a marker for snake (v) or ladder (^) starts,
// and the initial of every player standing there.
func Render(cfg model.BoardConfig, players []*model.Player, rowWidth int) string {
	if rowWidth <= 0 {
		rowWidth = DefaultRowWidth
	}
	rows := (cfg.Size + rowWidth - 1) / rowWidth

	grid := make([][]string, rows)
	for r := range grid {
		grid[r] = make([]string, rowWidth)
	}

	occupants := make(map[int]string)
	for _, p := range players {
		if p.Position < 1 || p.Name == "" {
			continue
		}
		occupants[p.Position] += string(unicode.ToUpper([]rune(p.Name)[0]))
	}

	for cell := 1; cell <= cfg.Size; cell++ {
		marker := " "
		if sl, ok := cfg.Lookup(cell); ok {
			marker = "^"
			if sl.Kind == model.EffectSnake {
				marker = "v"
			}
		}
		c := CellToCoordinates(cell, rowWidth)
		grid[c.Row][c.Col] = fmt.Sprintf("%4d%s%-3s", cell, marker, occupants[cell])
	}

	var b strings.Builder
	for r := rows - 1; r >= 0; r-- {
		for c, text := range grid[r] {
			if text == "" {
				text = strings.Repeat(" ", 8)
			}
			if c > 0 {
				b.WriteString("|")
			}
			b.WriteString(text)
		}
		b.WriteString("\n")
	}
	return b.String()
}
