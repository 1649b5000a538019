package model

import "time"

// PlayerID uniquely identifies a player within the system
type PlayerID string

// Player is a participant in exactly one game
type Player struct {
	ID          PlayerID  `json:"id"`
	GameCode    GameCode  `json:"gameCode"`
	Name        string    `json:"name"`
	Color       string    `json:"color"`
	Position    int       `json:"position"` // 0 until the first move
	IsConnected bool      `json:"isConnected"`
	ChannelID   ChannelID `json:"-"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// RankedPlayer is a player annotated with standings for the admin view
type RankedPlayer struct {
	Player
	Rank          int `json:"rank"`
	DistanceToWin int `json:"distanceToWin"`
}
