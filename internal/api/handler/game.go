package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/snakesgame/internal/api/request"
	"github.com/mcoot/snakesgame/internal/api/response"
	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/services/game"
)

// GameHandler handles game-related endpoints
type GameHandler struct {
	games *game.Controller
}

// NewGameHandler creates a new game handler
func NewGameHandler(games *game.Controller) *GameHandler {
	return &GameHandler{games: games}
}

// Create handles POST /api/v1/games
func (h *GameHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("Invalid request body"))
		return
	}

	result, err := h.games.CreateGame(r.Context(), req.Name(), req.BoardConfig)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.CreateGameResponse{
		Game:     result.Game,
		PlayerID: result.Player.ID,
		Players:  []*model.Player{result.Player},
	})
}

// Get handles GET /api/v1/games/{code}
func (h *GameHandler) Get(w http.ResponseWriter, r *http.Request) {
	code := model.GameCode(mux.Vars(r)["code"])

	snapshot, err := h.games.GetGame(r.Context(), code)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.GameResponse{
		Game:    snapshot.Game,
		Players: snapshot.Players,
	})
}
