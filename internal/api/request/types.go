package request

import (
	"strings"

	"github.com/mcoot/snakesgame/internal/model"
)

// CreateGameRequest is the request body for creating a game
type CreateGameRequest struct {
	CreatorName string             `json:"creatorName"`
	BoardConfig *model.BoardConfig `json:"boardConfig,omitempty"`

	// PlayerName is the pre-release spelling of CreatorName, still accepted
	PlayerName string `json:"playerName,omitempty"`
}

// Name returns the creator's name, preferring creatorName when both are set
func (r CreateGameRequest) Name() string {
	if strings.TrimSpace(r.CreatorName) != "" {
		return r.CreatorName
	}
	return r.PlayerName
}
