package redis

import (
	"fmt"

	"github.com/mcoot/snakesgame/internal/model"
)

// Key prefix for all session data
const keyPrefix = "snakes"

// gameKey returns the Redis key for a Game
func gameKey(code model.GameCode) string {
	return fmt.Sprintf("%s:game:%s", keyPrefix, code)
}

// gamesIndexKey returns the Redis key for the SET of all game codes
func gamesIndexKey() string {
	return fmt.Sprintf("%s:idx:games", keyPrefix)
}

// playerKey returns the Redis key for a Player
func playerKey(code model.GameCode, id model.PlayerID) string {
	return fmt.Sprintf("%s:player:%s:%s", keyPrefix, code, id)
}

// playersIndexKey returns the Redis key for the LIST of player ids in join order
func playersIndexKey(code model.GameCode) string {
	return fmt.Sprintf("%s:idx:players:%s", keyPrefix, code)
}

// movesKey returns the Redis key for a game's move LIST
func movesKey(code model.GameCode) string {
	return fmt.Sprintf("%s:moves:%s", keyPrefix, code)
}

// connectionKey returns the Redis key for a Connection
func connectionKey(id model.ChannelID) string {
	return fmt.Sprintf("%s:connection:%s", keyPrefix, id)
}

// connectionsForGameIndexKey returns the Redis key for the SET of channels linked to a game
func connectionsForGameIndexKey(code model.GameCode) string {
	return fmt.Sprintf("%s:idx:connections_for_game:%s", keyPrefix, code)
}
