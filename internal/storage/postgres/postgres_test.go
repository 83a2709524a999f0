package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/carlos-dev-research/web-rag-chatbot/internal/models"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/storage"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})

	return newWithDB(db), mock
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()

	t.Run("ok", func(t *testing.T) {
		s, mock := newRepoWithMock(t)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (email, password_hash, salt)")).
			WithArgs("alice", []byte("hash"), []byte("salt")).
			WillReturnResult(sqlmock.NewResult(1, 1))

		require.NoError(t, s.CreateUser(ctx, "alice", []byte("hash"), []byte("salt")))
	})

	t.Run("duplicate", func(t *testing.T) {
		s, mock := newRepoWithMock(t)

		mock.ExpectExec("INSERT INTO users").
			WillReturnError(&pgconn.PgError{Code: uniqueViolation})

		err := s.CreateUser(ctx, "alice", []byte("hash"), []byte("salt"))
		assert.ErrorIs(t, err, storage.ErrUserExists)
	})

	t.Run("db error", func(t *testing.T) {
		s, mock := newRepoWithMock(t)

		mock.ExpectExec("INSERT INTO users").WillReturnError(errors.New("boom"))

		err := s.CreateUser(ctx, "alice", []byte("hash"), []byte("salt"))
		require.Error(t, err)
		assert.NotErrorIs(t, err, storage.ErrUserExists)
	})
}

func TestReadSalt(t *testing.T) {
	ctx := context.Background()

	t.Run("ok", func(t *testing.T) {
		s, mock := newRepoWithMock(t)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT salt FROM users WHERE email = $1")).
			WithArgs("alice").
			WillReturnRows(sqlmock.NewRows([]string{"salt"}).AddRow([]byte("salt")))

		salt, err := s.ReadSalt(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, []byte("salt"), salt)
	})

	t.Run("not found", func(t *testing.T) {
		s, mock := newRepoWithMock(t)

		mock.ExpectQuery("SELECT salt FROM users").WillReturnError(sql.ErrNoRows)

		_, err := s.ReadSalt(ctx, "alice")
		assert.ErrorIs(t, err, storage.ErrUserNotFound)
	})
}

func TestCreateToken(t *testing.T) {
	ctx := context.Background()
	exp := time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC)

	t.Run("ok", func(t *testing.T) {
		s, mock := newRepoWithMock(t)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tokens (token, user_id, expires_at)")).
			WithArgs("alice", []byte("hash"), "tok", exp).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.CreateToken(ctx, "alice", []byte("hash"), "tok", exp))
	})

	t.Run("bad credentials", func(t *testing.T) {
		s, mock := newRepoWithMock(t)

		mock.ExpectExec("INSERT INTO tokens").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := s.CreateToken(ctx, "alice", []byte("wrong"), "tok", exp)
		assert.ErrorIs(t, err, storage.ErrInvalidCredentials)
	})
}

func TestVerifyToken(t *testing.T) {
	s, mock := newRepoWithMock(t)

	mock.ExpectQuery(`WITH auth AS .*SELECT EXISTS \(SELECT 1 FROM auth\)`).
		WithArgs("alice", "tok").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`WITH auth AS`).
		WithArgs("alice", "old").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := s.VerifyToken(context.Background(), "alice", "tok")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.VerifyToken(context.Background(), "alice", "old")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteToken(t *testing.T) {
	s, mock := newRepoWithMock(t)

	mock.ExpectExec(`WITH auth AS .*DELETE FROM tokens`).
		WithArgs("alice", "tok").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM tokens`).
		WithArgs("alice", "tok").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.DeleteToken(context.Background(), "alice", "tok"))
	assert.ErrorIs(t, s.DeleteToken(context.Background(), "alice", "tok"), storage.ErrInvalidToken)
}

func TestDeleteUser(t *testing.T) {
	tests := []struct {
		name       string
		tokenValid bool
		deleted    bool
		wantErr    error
	}{
		{name: "ok", tokenValid: true, deleted: true},
		{name: "bad token", tokenValid: false, deleted: false, wantErr: storage.ErrInvalidToken},
		{name: "bad password", tokenValid: true, deleted: false, wantErr: storage.ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newRepoWithMock(t)

			mock.ExpectQuery(`DELETE FROM users`).
				WithArgs("alice", "tok", []byte("hash")).
				WillReturnRows(sqlmock.NewRows([]string{"token_valid", "op_status"}).AddRow(tt.tokenValid, tt.deleted))

			err := s.DeleteUser(context.Background(), "alice", []byte("hash"), "tok")
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestListConversations(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("rows", func(t *testing.T) {
		s, mock := newRepoWithMock(t)

		mock.ExpectQuery(`LEFT JOIN conversations c ON c.user_id = auth.id\s+ORDER BY c.created_at DESC`).
			WithArgs("alice", "tok").
			WillReturnRows(sqlmock.NewRows([]string{"id", "title", "created_at"}).
				AddRow("c2", "second", created.Add(time.Minute)).
				AddRow("c1", "first", created))

		got, err := s.ListConversations(ctx, "alice", "tok")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "c2", got[0].ID)
		assert.Equal(t, "first", got[1].Title)
	})

	t.Run("no conversations", func(t *testing.T) {
		s, mock := newRepoWithMock(t)

		mock.ExpectQuery(`LEFT JOIN conversations`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "title", "created_at"}).AddRow(nil, nil, nil))

		got, err := s.ListConversations(ctx, "alice", "tok")
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("bad token", func(t *testing.T) {
		s, mock := newRepoWithMock(t)

		mock.ExpectQuery(`LEFT JOIN conversations`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "title", "created_at"}))

		_, err := s.ListConversations(ctx, "alice", "tok")
		assert.ErrorIs(t, err, storage.ErrInvalidToken)
	})
}

func TestCreateConversation(t *testing.T) {
	ctx := context.Background()
	turns := []models.Turn{{Role: models.RoleUser, Content: "Hi"}}

	t.Run("ok", func(t *testing.T) {
		s, mock := newRepoWithMock(t)

		mock.ExpectExec(`INSERT INTO conversations \(id, user_id, title, turns\)`).
			WithArgs("alice", "tok", sqlmock.AnyArg(), "Greeting", `[{"role":"user","content":"Hi"}]`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		id, err := s.CreateConversation(ctx, "alice", "tok", "Greeting", turns)
		require.NoError(t, err)
		assert.Len(t, id, 36)
	})

	t.Run("bad token", func(t *testing.T) {
		s, mock := newRepoWithMock(t)

		mock.ExpectExec(`INSERT INTO conversations`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		_, err := s.CreateConversation(ctx, "alice", "tok", "Greeting", turns)
		assert.ErrorIs(t, err, storage.ErrInvalidToken)
	})
}

func TestReadConversation(t *testing.T) {
	ctx := context.Background()
	cols := []string{"id", "title", "turns", "created_at"}

	t.Run("ok", func(t *testing.T) {
		s, mock := newRepoWithMock(t)

		mock.ExpectQuery(`LEFT JOIN conversations c ON c.user_id = auth.id AND c.id = \$3`).
			WithArgs("alice", "tok", "c1").
			WillReturnRows(sqlmock.NewRows(cols).
				AddRow("c1", "Greeting", []byte(`[{"role":"user","content":"Hi"},{"role":"assistant","content":"Hello"}]`), time.Now()))

		conv, err := s.ReadConversation(ctx, "alice", "tok", "c1")
		require.NoError(t, err)
		assert.Equal(t, []models.Turn{
			{Role: models.RoleUser, Content: "Hi"},
			{Role: models.RoleAssistant, Content: "Hello"},
		}, conv.Turns)
	})

	t.Run("not owned", func(t *testing.T) {
		s, mock := newRepoWithMock(t)

		mock.ExpectQuery(`LEFT JOIN conversations`).
			WillReturnRows(sqlmock.NewRows(cols).AddRow(nil, nil, nil, nil))

		_, err := s.ReadConversation(ctx, "alice", "tok", "c1")
		assert.ErrorIs(t, err, storage.ErrConversationNotFound)
	})

	t.Run("bad token", func(t *testing.T) {
		s, mock := newRepoWithMock(t)

		mock.ExpectQuery(`LEFT JOIN conversations`).
			WillReturnRows(sqlmock.NewRows(cols))

		_, err := s.ReadConversation(ctx, "alice", "tok", "c1")
		assert.ErrorIs(t, err, storage.ErrInvalidToken)
	})
}

func TestUpdateAndDeleteConversation(t *testing.T) {
	tests := []struct {
		name       string
		tokenValid bool
		changed    bool
		wantErr    error
	}{
		{name: "ok", tokenValid: true, changed: true},
		{name: "bad token", wantErr: storage.ErrInvalidToken},
		{name: "not owned", tokenValid: true, wantErr: storage.ErrConversationNotFound},
	}

	for _, tt := range tests {
		t.Run("update "+tt.name, func(t *testing.T) {
			s, mock := newRepoWithMock(t)

			mock.ExpectQuery(`UPDATE conversations c\s+SET turns = \$4::jsonb`).
				WithArgs("alice", "tok", "c1", `[]`).
				WillReturnRows(sqlmock.NewRows([]string{"token_valid", "op_status"}).AddRow(tt.tokenValid, tt.changed))

			err := s.UpdateConversation(context.Background(), "alice", "tok", "c1", []models.Turn{})
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})

		t.Run("delete "+tt.name, func(t *testing.T) {
			s, mock := newRepoWithMock(t)

			mock.ExpectQuery(`DELETE FROM conversations c`).
				WithArgs("alice", "tok", "c1").
				WillReturnRows(sqlmock.NewRows([]string{"token_valid", "op_status"}).AddRow(tt.tokenValid, tt.changed))

			err := s.DeleteConversation(context.Background(), "alice", "tok", "c1")
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestMigrate(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()

	var gotDir string
	gooseUpContext = func(_ context.Context, _ *sql.DB, dir string, _ ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}

	require.NoError(t, Migrate(context.Background(), db))
	assert.Equal(t, "migrations", gotDir)

	gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	assert.Error(t, Migrate(context.Background(), db))
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "00001_init.sql", entries[0].Name())
}
