package session

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/carlos-dev-research/web-rag-chatbot/internal/auth"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/models"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	auth    *auth.Auth
	factory *Factory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.New()
	a := auth.New(slog.New(slog.DiscardHandler), store, store, store, "secret")

	require.NoError(t, a.CreateUser(context.Background(), "alice", "pw1"))
	require.NoError(t, a.CreateUser(context.Background(), "bob", "pw2"))

	return &fixture{auth: a, factory: NewFactory(a, store)}
}

func (f *fixture) login(t *testing.T, user, pass string, ttl time.Duration) string {
	t.Helper()

	token, err := f.auth.CreateToken(context.Background(), user, pass, ttl)
	require.NoError(t, err)

	return token
}

func TestOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token := f.login(t, "alice", "pw1", time.Hour)

	s, err := f.factory.Open(ctx, "alice", token)
	require.NoError(t, err)
	assert.Equal(t, "alice", s.User())

	_, err = f.factory.Open(ctx, "bob", token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	expired := f.login(t, "alice", "pw1", 0)
	_, err = f.factory.Open(ctx, "alice", expired)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestConversationLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.factory.Open(ctx, "alice", f.login(t, "alice", "pw1", time.Hour))
	require.NoError(t, err)

	history, err := s.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)

	turns := []models.Turn{{Role: models.RoleUser, Content: "Hello"}}
	id, err := s.CreateConversation(ctx, "Greeting", turns)
	require.NoError(t, err)

	conv, err := s.ReadConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, turns, conv.Turns)

	turns = append(turns, models.Turn{Role: models.RoleAssistant, Content: "Hi!"})
	require.NoError(t, s.UpdateConversation(ctx, id, turns))

	history, err = s.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Greeting", history[0].Title)

	require.NoError(t, s.DeleteConversation(ctx, id))

	_, err = s.ReadConversation(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteConversation(ctx, id), ErrNotFound)
}

func TestCrossUserIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, err := f.factory.Open(ctx, "alice", f.login(t, "alice", "pw1", time.Hour))
	require.NoError(t, err)
	bob, err := f.factory.Open(ctx, "bob", f.login(t, "bob", "pw2", time.Hour))
	require.NoError(t, err)

	id, err := alice.CreateConversation(ctx, "secret plans", nil)
	require.NoError(t, err)

	_, errOwned := bob.ReadConversation(ctx, id)
	_, errMissing := bob.ReadConversation(ctx, "does-not-exist")
	assert.ErrorIs(t, errOwned, ErrNotFound)
	assert.ErrorIs(t, errMissing, ErrNotFound)

	assert.ErrorIs(t, bob.DeleteConversation(ctx, id), ErrNotFound)

	_, err = alice.ReadConversation(ctx, id)
	require.NoError(t, err)
}

func TestLogout_InvalidatesLaterCalls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1 := f.login(t, "alice", "pw1", time.Hour)
	t2 := f.login(t, "alice", "pw1", time.Hour)

	s1, err := f.factory.Open(ctx, "alice", t1)
	require.NoError(t, err)

	require.NoError(t, s1.Logout(ctx))

	_, err = s1.History(ctx)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, s1.Logout(ctx), ErrUnauthorized)

	s2, err := f.factory.Open(ctx, "alice", t2)
	require.NoError(t, err)
	_, err = s2.History(ctx)
	require.NoError(t, err)
}

func TestDeleteUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.factory.Open(ctx, "alice", f.login(t, "alice", "pw1", time.Hour))
	require.NoError(t, err)

	_, err = s.CreateConversation(ctx, "c", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteUser(ctx, "wrong"), ErrInvalidCredentials)

	require.NoError(t, s.DeleteUser(ctx, "pw1"))

	_, err = s.History(ctx)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSession_TokenExpiresAfterOpen(t *testing.T) {
	ctx := context.Background()

	now := time.Now()
	store := memory.New(memory.WithClock(func() time.Time { return now }))
	a := auth.New(slog.New(slog.DiscardHandler), store, store, store, "secret")
	factory := NewFactory(a, store)

	require.NoError(t, a.CreateUser(ctx, "alice", "pw1"))
	token, err := a.CreateToken(ctx, "alice", "pw1", time.Hour)
	require.NoError(t, err)

	s, err := factory.Open(ctx, "alice", token)
	require.NoError(t, err)

	id, err := s.CreateConversation(ctx, "Greeting", []models.Turn{{Role: models.RoleUser, Content: "Hello"}})
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)

	_, err = s.History(ctx)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = s.ReadConversation(ctx, id)
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = s.UpdateConversation(ctx, id, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
}
