package models

import (
	"time"
)

// Companion is an AI persona owned by its creator. MessageDelay and
// SendMultipleMessages parameterize reply pacing and the multi-message roll.
type Companion struct {
	ID                   string    `json:"id" db:"id"`
	UserID               string    `json:"user_id" db:"user_id"`
	UserName             string    `json:"user_name" db:"user_name"`
	CategoryID           string    `json:"category_id,omitempty" db:"category_id"`
	Src                  string    `json:"src" db:"src"`
	Name                 string    `json:"name" db:"name"`
	Description          string    `json:"description" db:"description"`
	Instructions         string    `json:"instructions" db:"instructions"`
	Seed                 string    `json:"seed" db:"seed"`
	MessageDelay         int       `json:"message_delay" db:"message_delay"`
	SendMultipleMessages bool      `json:"send_multiple_messages" db:"send_multiple_messages"`
	XPEarned             int       `json:"xp_earned" db:"xp_earned"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time `json:"updated_at" db:"updated_at"`
}

// Category groups companions for browsing.
type Category struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Message is one turn in a direct chat with a companion.
type Message struct {
	ID          string    `json:"id" db:"id"`
	CompanionID string    `json:"companion_id" db:"companion_id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Role        string    `json:"role" db:"role"`
	Content     string    `json:"content" db:"content"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Message roles
const (
	RoleUser      = "user"
	RoleCompanion = "system"
)

// GroupChat is a chat room owned by its creator with companion members.
type GroupChat struct {
	ID        string      `json:"id" db:"id"`
	CreatorID string      `json:"creator_id" db:"creator_id"`
	Name      string      `json:"name" db:"name"`
	Members   []Companion `json:"members,omitempty"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

// GroupMessage is one message in a group chat. SenderID is the user ID for
// user turns and the companion ID for bot turns.
type GroupMessage struct {
	ID          string    `json:"id" db:"id"`
	GroupChatID string    `json:"group_chat_id" db:"group_chat_id"`
	SenderID    string    `json:"sender_id" db:"sender_id"`
	IsBot       bool      `json:"is_bot" db:"is_bot"`
	Content     string    `json:"content" db:"content"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// CommunityIdea is a user-submitted feature idea with vote tallies.
type CommunityIdea struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Upvotes     int       `json:"upvotes" db:"upvotes"`
	Downvotes   int       `json:"downvotes" db:"downvotes"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// UsageTransaction records an XP purchase for auditing. Lifetime counters on
// the account stay the leveling input; this table lets analytics separate
// paid-in XP from spend.
type UsageTransaction struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Amount    int       `json:"amount" db:"amount"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
