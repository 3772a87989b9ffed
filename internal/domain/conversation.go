package domain

import (
	"time"

	"github.com/google/uuid"
)

// Conversation summarizes the exchange with one partner. It is derived on
// every request and never stored.
type Conversation struct {
	Partner     UserSummary `json:"partner"`
	LastMessage Message     `json:"lastMessage"`
	UnreadCount int         `json:"unreadCount"`
	IsOnline    bool        `json:"isOnline"`
}

// History is one page of a conversation, oldest first
type History struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"hasMore"`
}

// PollResult carries everything that changed since the client's last poll.
// Timestamp is the server clock and must be sent back as the next since.
type PollResult struct {
	Messages     []Message          `json:"messages"`
	UnreadCounts map[uuid.UUID]int  `json:"unreadCounts"`
	OnlineStatus map[uuid.UUID]bool `json:"onlineStatus"`
	Timestamp    time.Time          `json:"timestamp"`
}
