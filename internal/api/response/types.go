package response

import (
	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/services/admin"
)

// CreateGameResponse is returned when a game is created
type CreateGameResponse struct {
	Game     *model.Game     `json:"game"`
	PlayerID model.PlayerID  `json:"playerId"`
	Players  []*model.Player `json:"players"`
}

// GameResponse is a game with its players
type GameResponse struct {
	Game    *model.Game     `json:"game"`
	Players []*model.Player `json:"players"`
}

// AdminGamesResponse lists game summaries
type AdminGamesResponse struct {
	Games []*model.GameSummary `json:"games"`
}

// AdminGameResponse is the detailed admin view of one game
type AdminGameResponse = admin.GameDetail

// HealthResponse reports server health
type HealthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage,omitempty"`
}
