package model

// EffectKind distinguishes snakes from ladders
type EffectKind string

const (
	EffectSnake  EffectKind = "snake"
	EffectLadder EffectKind = "ladder"
)

// SnakeOrLadder moves a player from Start to End when they land on Start
type SnakeOrLadder struct {
	Start int        `json:"start"`
	End   int        `json:"end"`
	Kind  EffectKind `json:"type"`
}

// BoardConfig describes a board layout
type BoardConfig struct {
	Size             int             `json:"size"`
	SnakesAndLadders []SnakeOrLadder `json:"snakesAndLadders"`
}

// Lookup returns the first entry starting at the given cell
func (b BoardConfig) Lookup(cell int) (SnakeOrLadder, bool) {
	for _, sl := range b.SnakesAndLadders {
		if sl.Start == cell {
			return sl, true
		}
	}
	return SnakeOrLadder{}, false
}

// MoveEffect records a snake or ladder applied during a move
type MoveEffect struct {
	Kind EffectKind `json:"type"`
	From int        `json:"from"`
	To   int        `json:"to"`
}
