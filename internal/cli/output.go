package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/mcoot/snakesgame/internal/message"
	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/services/board"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter
func NewOutput(format string, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Fprintln(o.w, string(data))
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

// PrintEvent outputs one realtime message. JSON output is one line per event.
func (o *Output) PrintEvent(msg message.ServerMessage) {
	if o.format == "json" {
		data, _ := message.Encode(msg)
		fmt.Fprintln(o.w, string(data))
		return
	}

	switch m := msg.(type) {
	case message.JoinedGame:
		fmt.Fprintf(o.w, "Joined game %s as %s\n", m.Game.Code, m.PlayerID)
		o.printPlayers(m.Players)
	case message.GameState:
		fmt.Fprintf(o.w, "Game %s is %s\n", m.Game.Code, m.Game.Status)
		o.printPlayers(m.Players)
	case message.PlayerJoined:
		fmt.Fprintf(o.w, "%s joined (%s)\n", m.Player.Name, m.Player.Color)
	case message.PlayerLeft:
		fmt.Fprintf(o.w, "%s left\n", m.PlayerName)
	case message.GameStarted:
		fmt.Fprintln(o.w, "Game started")
	case message.PlayerMoved:
		line := fmt.Sprintf("%s rolled %d: %d -> %d", m.PlayerName, m.DiceRoll, m.PreviousPosition, m.NewPosition)
		if m.Effect != nil {
			line += fmt.Sprintf(" (%s from %d)", m.Effect.Kind, m.Effect.From)
		}
		fmt.Fprintln(o.w, line)
	case message.GameEnded:
		fmt.Fprintf(o.w, "%s wins!\n", m.WinnerName)
	case message.Error:
		fmt.Fprintf(o.w, "Error: %s (%s)\n", m.Message, m.Code)
	case message.Pong:
		fmt.Fprintln(o.w, "pong")
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case GameView:
		o.printGame(v)
	case AdminGames:
		o.printAdminGames(v)
	case AdminGame:
		o.printAdminGame(v)
	case BoardView:
		o.printBoardView(v)
	case HealthResult:
		o.printHealthResult(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// GameView is a game with its players, as returned by create and get
type GameView struct {
	Game     *model.Game     `json:"game"`
	PlayerID model.PlayerID  `json:"playerId,omitempty"`
	Players  []*model.Player `json:"players"`
}

// AdminGames is the admin game listing
type AdminGames struct {
	Games []*model.GameSummary `json:"games"`
}

// AdminGame is the admin detail view of one game
type AdminGame struct {
	Game    *model.Game           `json:"game"`
	Players []*model.RankedPlayer `json:"players"`
	Moves   []*model.Move         `json:"moves"`
}

// BoardView is a board layout with the outcome of validating it
type BoardView struct {
	Board    model.BoardConfig `json:"board"`
	Valid    bool              `json:"valid"`
	Problems []string          `json:"problems,omitempty"`

	players []*model.Player
}

// HealthResult response type
type HealthResult struct {
	Status  string `json:"status"`
	Storage string `json:"storage,omitempty"`
}

func (o *Output) printGame(g GameView) {
	fmt.Fprintf(o.w, "Game: %s\n", g.Game.Code)
	fmt.Fprintf(o.w, "Status: %s\n", g.Game.Status)
	fmt.Fprintf(o.w, "Board: %d cells, %d snakes and ladders\n", g.Game.Board.Size, len(g.Game.Board.SnakesAndLadders))
	if g.PlayerID != "" {
		fmt.Fprintf(o.w, "Your player ID: %s\n", g.PlayerID)
	}
	o.printPlayers(g.Players)
	if g.Game.WinnerID != "" {
		fmt.Fprintf(o.w, "Winner: %s\n", g.Game.WinnerID)
	}
}

func (o *Output) printPlayers(players []*model.Player) {
	fmt.Fprintf(o.w, "Players (%d):\n", len(players))
	for _, p := range players {
		status := "offline"
		if p.IsConnected {
			status = "online"
		}
		fmt.Fprintf(o.w, "  - %s (%s) at %d, %s\n", p.Name, p.Color, p.Position, status)
	}
}

func (o *Output) printAdminGames(g AdminGames) {
	if len(g.Games) == 0 {
		fmt.Fprintln(o.w, "No games")
		return
	}
	for _, s := range g.Games {
		leader := "-"
		if s.LeaderName != "" {
			leader = fmt.Sprintf("%s@%d", s.LeaderName, s.LeaderPosition)
		}
		fmt.Fprintf(o.w, "%s  %-8s  players=%d  leader=%s  created=%s\n",
			s.Code, s.Status, s.PlayerCount, leader, s.CreatedAt.Format("2006-01-02 15:04:05"))
	}
}

func (o *Output) printAdminGame(g AdminGame) {
	fmt.Fprintf(o.w, "Game: %s (%s)\n", g.Game.Code, g.Game.Status)
	fmt.Fprintln(o.w, "Standings:")
	for _, p := range g.Players {
		fmt.Fprintf(o.w, "  %d. %s at %d (%d to go)\n", p.Rank, p.Name, p.Position, p.DistanceToWin)
	}
	if len(g.Moves) == 0 {
		return
	}
	fmt.Fprintln(o.w, "Recent moves:")
	for _, m := range g.Moves {
		line := fmt.Sprintf("  %s %s rolled %d: %d -> %d",
			m.Timestamp.Format("15:04:05"), m.PlayerName, m.DiceRoll, m.PreviousPosition, m.NewPosition)
		if m.Effect != nil {
			line += " (" + string(m.Effect.Kind) + ")"
		}
		fmt.Fprintln(o.w, line)
	}
}

func (o *Output) printBoardView(b BoardView) {
	if !b.Valid {
		fmt.Fprintln(o.w, "Board is invalid:")
		for _, p := range b.Problems {
			fmt.Fprintf(o.w, "  - %s\n", p)
		}
		return
	}
	fmt.Fprint(o.w, board.Render(b.Board, b.players, board.DefaultRowWidth))
	fmt.Fprintf(o.w, "%d cells, %d snakes and ladders (^ ladder, v snake)\n", b.Board.Size, len(b.Board.SnakesAndLadders))
}

func (o *Output) printHealthResult(h HealthResult) {
	fmt.Fprintf(o.w, "Status: %s\n", h.Status)
	if h.Storage != "" {
		fmt.Fprintf(o.w, "Storage: %s\n", h.Storage)
	}
}
