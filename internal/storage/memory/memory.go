// Package memory is an in-process store with the same contract as the
// postgres backend. Every operation holds a single lock, so the token check
// and the data change are atomic.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/carlos-dev-research/web-rag-chatbot/internal/lib/password"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/models"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/storage"

	"github.com/google/uuid"
)

type conversation struct {
	models.Conversation
	owner int64
}

type Storage struct {
	mu            sync.Mutex
	now           func() time.Time
	nextUserID    int64
	users         map[string]*models.User
	tokens        map[string]models.Token
	conversations map[string]*conversation
}

type Option func(*Storage)

// WithClock overrides the time source used for token expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Storage) {
		s.now = now
	}
}

func New(opts ...Option) *Storage {
	s := &Storage{
		now:           time.Now,
		users:         make(map[string]*models.User),
		tokens:        make(map[string]models.Token),
		conversations: make(map[string]*conversation),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Storage) CreateUser(_ context.Context, email string, passHash, salt []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[email]; ok {
		return storage.ErrUserExists
	}

	s.nextUserID++
	s.users[email] = &models.User{
		ID:       s.nextUserID,
		Email:    email,
		PassHash: slices.Clone(passHash),
		Salt:     slices.Clone(salt),
	}

	return nil
}

func (s *Storage) ReadSalt(_ context.Context, email string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[email]
	if !ok {
		return nil, storage.ErrUserNotFound
	}

	return slices.Clone(u.Salt), nil
}

func (s *Storage) CreateToken(_ context.Context, email string, passHash []byte, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[email]
	if !ok || !password.Equal(u.PassHash, passHash) {
		return storage.ErrInvalidCredentials
	}

	s.tokens[token] = models.Token{
		Value:     token,
		UserID:    u.ID,
		ExpiresAt: expiresAt,
	}

	return nil
}

func (s *Storage) VerifyToken(_ context.Context, email, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.authorize(email, token)

	return ok, nil
}

func (s *Storage) DeleteToken(_ context.Context, email, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.authorize(email, token); !ok {
		return storage.ErrInvalidToken
	}

	delete(s.tokens, token)

	return nil
}

func (s *Storage) DeleteUser(_ context.Context, email string, passHash []byte, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.authorize(email, token)
	if !ok {
		return storage.ErrInvalidToken
	}

	if !password.Equal(u.PassHash, passHash) {
		return storage.ErrInvalidCredentials
	}

	for k, t := range s.tokens {
		if t.UserID == u.ID {
			delete(s.tokens, k)
		}
	}
	for k, c := range s.conversations {
		if c.owner == u.ID {
			delete(s.conversations, k)
		}
	}
	delete(s.users, email)

	return nil
}

func (s *Storage) ListConversations(_ context.Context, email, token string) ([]models.ConversationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.authorize(email, token)
	if !ok {
		return nil, storage.ErrInvalidToken
	}

	summaries := []models.ConversationSummary{}
	for _, c := range s.conversations {
		if c.owner != u.ID {
			continue
		}
		summaries = append(summaries, models.ConversationSummary{
			ID:        c.ID,
			Title:     c.Title,
			CreatedAt: c.CreatedAt,
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})

	return summaries, nil
}

func (s *Storage) CreateConversation(_ context.Context, email, token, title string, turns []models.Turn) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.authorize(email, token)
	if !ok {
		return "", storage.ErrInvalidToken
	}

	id := uuid.NewString()
	s.conversations[id] = &conversation{
		Conversation: models.Conversation{
			ID:        id,
			Title:     title,
			Turns:     slices.Clone(turns),
			CreatedAt: s.now(),
		},
		owner: u.ID,
	}

	return id, nil
}

func (s *Storage) ReadConversation(_ context.Context, email, token, id string) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.owned(email, token, id)
	if err != nil {
		return models.Conversation{}, err
	}

	conv := c.Conversation
	conv.Turns = slices.Clone(c.Turns)

	return conv, nil
}

func (s *Storage) UpdateConversation(_ context.Context, email, token, id string, turns []models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.owned(email, token, id)
	if err != nil {
		return err
	}

	c.Turns = slices.Clone(turns)

	return nil
}

func (s *Storage) DeleteConversation(_ context.Context, email, token, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.owned(email, token, id); err != nil {
		return err
	}

	delete(s.conversations, id)

	return nil
}

func (s *Storage) Close() {}

// authorize must be called with mu held.
func (s *Storage) authorize(email, token string) (*models.User, bool) {
	u, ok := s.users[email]
	if !ok {
		return nil, false
	}

	t, ok := s.tokens[token]
	if !ok || t.UserID != u.ID || !s.now().Before(t.ExpiresAt) {
		return nil, false
	}

	return u, true
}

func (s *Storage) owned(email, token, id string) (*conversation, error) {
	u, ok := s.authorize(email, token)
	if !ok {
		return nil, storage.ErrInvalidToken
	}

	c, ok := s.conversations[id]
	if !ok || c.owner != u.ID {
		return nil, storage.ErrConversationNotFound
	}

	return c, nil
}
