// Package session binds a (user, token) pair that has been verified at
// construction. Every later call is re-authorized by the store, so a token
// that expires or is revoked mid-session fails the next call.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/carlos-dev-research/web-rag-chatbot/internal/auth"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/models"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/storage"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("conversation not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type Accounts interface {
	VerifyToken(ctx context.Context, email, token string) (bool, error)
	DeleteToken(ctx context.Context, email, token string) error
	DeleteUser(ctx context.Context, email, pass, token string) error
}

type Conversations interface {
	ListConversations(ctx context.Context, email, token string) ([]models.ConversationSummary, error)
	CreateConversation(ctx context.Context, email, token, title string, turns []models.Turn) (string, error)
	ReadConversation(ctx context.Context, email, token, id string) (models.Conversation, error)
	UpdateConversation(ctx context.Context, email, token, id string, turns []models.Turn) error
	DeleteConversation(ctx context.Context, email, token, id string) error
}

type Factory struct {
	accounts      Accounts
	conversations Conversations
}

func NewFactory(accounts Accounts, conversations Conversations) *Factory {
	return &Factory{
		accounts:      accounts,
		conversations: conversations,
	}
}

type Session struct {
	accounts      Accounts
	conversations Conversations
	user          string
	token         string
}

// Open verifies the pair and returns a session bound to it.
func (f *Factory) Open(ctx context.Context, user, token string) (*Session, error) {
	const op = "session.Open"

	ok, err := f.accounts.VerifyToken(ctx, user, token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	return &Session{
		accounts:      f.accounts,
		conversations: f.conversations,
		user:          user,
		token:         token,
	}, nil
}

func (s *Session) User() string {
	return s.user
}

func (s *Session) History(ctx context.Context) ([]models.ConversationSummary, error) {
	const op = "session.History"

	summaries, err := s.conversations.ListConversations(ctx, s.user, s.token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translate(err))
	}

	return summaries, nil
}

func (s *Session) CreateConversation(ctx context.Context, title string, turns []models.Turn) (string, error) {
	const op = "session.CreateConversation"

	id, err := s.conversations.CreateConversation(ctx, s.user, s.token, title, turns)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, translate(err))
	}

	return id, nil
}

func (s *Session) ReadConversation(ctx context.Context, id string) (models.Conversation, error) {
	const op = "session.ReadConversation"

	conv, err := s.conversations.ReadConversation(ctx, s.user, s.token, id)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("%s: %w", op, translate(err))
	}

	return conv, nil
}

// UpdateConversation replaces the stored turns. Concurrent writers race and
// the last write wins.
func (s *Session) UpdateConversation(ctx context.Context, id string, turns []models.Turn) error {
	const op = "session.UpdateConversation"

	if err := s.conversations.UpdateConversation(ctx, s.user, s.token, id, turns); err != nil {
		return fmt.Errorf("%s: %w", op, translate(err))
	}

	return nil
}

func (s *Session) DeleteConversation(ctx context.Context, id string) error {
	const op = "session.DeleteConversation"

	if err := s.conversations.DeleteConversation(ctx, s.user, s.token, id); err != nil {
		return fmt.Errorf("%s: %w", op, translate(err))
	}

	return nil
}

// Logout revokes the session token. The session is unusable afterwards.
func (s *Session) Logout(ctx context.Context) error {
	const op = "session.Logout"

	if err := s.accounts.DeleteToken(ctx, s.user, s.token); err != nil {
		return fmt.Errorf("%s: %w", op, translate(err))
	}

	return nil
}

func (s *Session) DeleteUser(ctx context.Context, pass string) error {
	const op = "session.DeleteUser"

	if err := s.accounts.DeleteUser(ctx, s.user, pass, s.token); err != nil {
		return fmt.Errorf("%s: %w", op, translate(err))
	}

	return nil
}

func translate(err error) error {
	switch {
	case errors.Is(err, storage.ErrInvalidToken), errors.Is(err, auth.ErrInvalidToken):
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	case errors.Is(err, storage.ErrConversationNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, auth.ErrInvalidCredentials):
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	default:
		return err
	}
}
