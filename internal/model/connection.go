package model

import "time"

// ChannelID identifies one client's open transport channel
type ChannelID string

// NodeID identifies the server process holding a channel's transport
type NodeID string

// Connection maps a channel to the game and player it serves
type Connection struct {
	ChannelID ChannelID `json:"channelId"`
	GameCode  GameCode  `json:"gameCode,omitempty"`
	PlayerID  PlayerID  `json:"playerId,omitempty"`
	// NodeID is empty for records written before nodes were tracked
	NodeID      NodeID    `json:"nodeId,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	// TTL is the lifetime granted when the record was last opened or touched
	TTL time.Duration `json:"ttl,omitempty"`
}

// IsLinked returns true once the channel has joined a game
func (c *Connection) IsLinked() bool {
	return c.GameCode != "" && c.PlayerID != ""
}

// IsExpired returns true if the connection should be garbage collected
func (c *Connection) IsExpired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// HeldBy reports whether node holds the channel's transport. Records without
// a node belong to every node.
func (c *Connection) HeldBy(node NodeID) bool {
	return c.NodeID == "" || c.NodeID == node
}

// Lifetime is how long the record should live from its last refresh,
// measured on the clock that wrote it
func (c *Connection) Lifetime() time.Duration {
	if c.TTL > 0 {
		return c.TTL
	}
	if c.ExpiresAt.IsZero() {
		return 0
	}
	return c.ExpiresAt.Sub(c.ConnectedAt)
}
