package models

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// MaxTitleLength bounds a conversation title in runes.
const MaxTitleLength = 45

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type User struct {
	ID       int64
	Email    string
	PassHash []byte
	Salt     []byte
}

type Token struct {
	Value     string
	UserID    int64
	ExpiresAt time.Time
}

// * Turn is a single message in a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Conversation struct {
	ID        string
	Title     string
	Turns     []Turn
	CreatedAt time.Time
}

// ConversationSummary is encoded as a positional [id, title, created_at] array.
type ConversationSummary struct {
	ID        string
	Title     string
	CreatedAt time.Time
}

func (s ConversationSummary) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{
		s.ID,
		s.Title,
		s.CreatedAt.UTC().Format(http.TimeFormat),
	})
}

func (s *ConversationSummary) UnmarshalJSON(data []byte) error {
	var fields []string
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if len(fields) != 3 {
		return fmt.Errorf("conversation summary: want 3 fields, got %d", len(fields))
	}

	createdAt, err := time.Parse(http.TimeFormat, fields[2])
	if err != nil {
		return err
	}

	s.ID, s.Title, s.CreatedAt = fields[0], fields[1], createdAt

	return nil
}

const (
	EventUserRegistered = "user.registered"
	EventUserDeleted    = "user.deleted"
)

// * AccountEvent is published to the broker on account lifecycle changes.
type AccountEvent struct {
	Type string    `json:"type"`
	User string    `json:"user"`
	At   time.Time `json:"at"`
}
