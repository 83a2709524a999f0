package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/carlos-dev-research/web-rag-chatbot/internal/config"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/models"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

const uniqueViolation = "23505"

// authCTE resolves ($1 email, $2 token) to the owning user when the token is
// live. Every authorizing statement starts with it so that the check and the
// data change run as one statement.
const authCTE = `
	WITH auth AS (
		SELECT u.id, u.password_hash
		FROM users u
		JOIN tokens t ON t.user_id = u.id
		WHERE u.email = $1 AND t.token = $2 AND t.expires_at > NOW()
	)`

type Storage struct {
	pool *pgxpool.Pool
	db   *sql.DB
}

func New(ctx context.Context, cfg config.Postgres) (*Storage, error) {
	const op = "storage.postgres.New"

	poolConfig, err := pgxpool.ParseConfig(dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return &Storage{pool: pool, db: stdlib.OpenDBFromPool(pool)}, nil
}

func newWithDB(db *sql.DB) *Storage {
	return &Storage{db: db}
}

func (s *Storage) DB() *sql.DB {
	return s.db
}

func (s *Storage) CreateUser(ctx context.Context, email string, passHash, salt []byte) error {
	const op = "storage.postgres.CreateUser"

	const query = `
		INSERT INTO users (email, password_hash, salt)
		VALUES ($1, $2, $3);
	`

	_, err := s.db.ExecContext(ctx, query, email, passHash, salt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%s: %w", op, storage.ErrUserExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) ReadSalt(ctx context.Context, email string) ([]byte, error) {
	const op = "storage.postgres.ReadSalt"

	const query = `SELECT salt FROM users WHERE email = $1;`

	var salt []byte

	err := s.db.QueryRowContext(ctx, query, email).Scan(&salt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return salt, nil
}

func (s *Storage) CreateToken(ctx context.Context, email string, passHash []byte, token string, expiresAt time.Time) error {
	const op = "storage.postgres.CreateToken"

	const query = `
		INSERT INTO tokens (token, user_id, expires_at)
		SELECT $3::text, id, $4::timestamptz
		FROM users
		WHERE email = $1 AND password_hash = $2;
	`

	res, err := s.db.ExecContext(ctx, query, email, passHash, token, expiresAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := expectRows(res, storage.ErrInvalidCredentials); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) VerifyToken(ctx context.Context, email, token string) (bool, error) {
	const op = "storage.postgres.VerifyToken"

	const query = authCTE + `
		SELECT EXISTS (SELECT 1 FROM auth);
	`

	var valid bool

	if err := s.db.QueryRowContext(ctx, query, email, token).Scan(&valid); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return valid, nil
}

func (s *Storage) DeleteToken(ctx context.Context, email, token string) error {
	const op = "storage.postgres.DeleteToken"

	const query = authCTE + `
		DELETE FROM tokens t
		USING auth
		WHERE t.user_id = auth.id AND t.token = $2;
	`

	res, err := s.db.ExecContext(ctx, query, email, token)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := expectRows(res, storage.ErrInvalidToken); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) DeleteUser(ctx context.Context, email string, passHash []byte, token string) error {
	const op = "storage.postgres.DeleteUser"

	const query = authCTE + `,
	del AS (
		DELETE FROM users u
		USING auth
		WHERE u.id = auth.id AND auth.password_hash = $3
		RETURNING u.id
	)
	SELECT EXISTS (SELECT 1 FROM auth), EXISTS (SELECT 1 FROM del);
	`

	var tokenValid, deleted bool

	if err := s.db.QueryRowContext(ctx, query, email, token, passHash).Scan(&tokenValid, &deleted); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := status(tokenValid, deleted, storage.ErrInvalidCredentials); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) ListConversations(ctx context.Context, email, token string) ([]models.ConversationSummary, error) {
	const op = "storage.postgres.ListConversations"

	// An empty result means the token failed; a live token with no
	// conversations still yields one all-NULL row from the outer join.
	const query = authCTE + `
		SELECT c.id, c.title, c.created_at
		FROM auth
		LEFT JOIN conversations c ON c.user_id = auth.id
		ORDER BY c.created_at DESC;
	`

	rows, err := s.db.QueryContext(ctx, query, email, token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var (
		authorized bool
		summaries  = []models.ConversationSummary{}
	)

	for rows.Next() {
		authorized = true

		var (
			id, title sql.NullString
			createdAt sql.NullTime
		)

		if err := rows.Scan(&id, &title, &createdAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if !id.Valid {
			continue
		}

		summaries = append(summaries, models.ConversationSummary{
			ID:        id.String,
			Title:     title.String,
			CreatedAt: createdAt.Time,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !authorized {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrInvalidToken)
	}

	return summaries, nil
}

func (s *Storage) CreateConversation(ctx context.Context, email, token, title string, turns []models.Turn) (string, error) {
	const op = "storage.postgres.CreateConversation"

	const query = authCTE + `
		INSERT INTO conversations (id, user_id, title, turns)
		SELECT $3::varchar, auth.id, $4::varchar, $5::jsonb
		FROM auth;
	`

	body, err := json.Marshal(turns)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	id := uuid.NewString()

	res, err := s.db.ExecContext(ctx, query, email, token, id, title, string(body))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := expectRows(res, storage.ErrInvalidToken); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (s *Storage) ReadConversation(ctx context.Context, email, token, id string) (models.Conversation, error) {
	const op = "storage.postgres.ReadConversation"

	const query = authCTE + `
		SELECT c.id, c.title, c.turns, c.created_at
		FROM auth
		LEFT JOIN conversations c ON c.user_id = auth.id AND c.id = $3;
	`

	var (
		convID, title sql.NullString
		turns         []byte
		createdAt     sql.NullTime
	)

	err := s.db.QueryRowContext(ctx, query, email, token, id).Scan(&convID, &title, &turns, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Conversation{}, fmt.Errorf("%s: %w", op, storage.ErrInvalidToken)
		}

		return models.Conversation{}, fmt.Errorf("%s: %w", op, err)
	}

	if !convID.Valid {
		return models.Conversation{}, fmt.Errorf("%s: %w", op, storage.ErrConversationNotFound)
	}

	conv := models.Conversation{
		ID:        convID.String,
		Title:     title.String,
		CreatedAt: createdAt.Time,
	}

	if err := json.Unmarshal(turns, &conv.Turns); err != nil {
		return models.Conversation{}, fmt.Errorf("%s: decode turns: %w", op, err)
	}

	return conv, nil
}

func (s *Storage) UpdateConversation(ctx context.Context, email, token, id string, turns []models.Turn) error {
	const op = "storage.postgres.UpdateConversation"

	const query = authCTE + `,
	upd AS (
		UPDATE conversations c
		SET turns = $4::jsonb, updated_at = NOW()
		FROM auth
		WHERE c.user_id = auth.id AND c.id = $3
		RETURNING c.id
	)
	SELECT EXISTS (SELECT 1 FROM auth), EXISTS (SELECT 1 FROM upd);
	`

	body, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var tokenValid, updated bool

	if err := s.db.QueryRowContext(ctx, query, email, token, id, string(body)).Scan(&tokenValid, &updated); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := status(tokenValid, updated, storage.ErrConversationNotFound); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) DeleteConversation(ctx context.Context, email, token, id string) error {
	const op = "storage.postgres.DeleteConversation"

	const query = authCTE + `,
	del AS (
		DELETE FROM conversations c
		USING auth
		WHERE c.user_id = auth.id AND c.id = $3
		RETURNING c.id
	)
	SELECT EXISTS (SELECT 1 FROM auth), EXISTS (SELECT 1 FROM del);
	`

	var tokenValid, deleted bool

	if err := s.db.QueryRowContext(ctx, query, email, token, id).Scan(&tokenValid, &deleted); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := status(tokenValid, deleted, storage.ErrConversationNotFound); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) Close() {
	_ = s.db.Close()
	if s.pool != nil {
		s.pool.Close()
	}
}

// status turns the (token_valid, op_status) pair into an error.
func status(tokenValid, ok bool, opErr error) error {
	switch {
	case !tokenValid:
		return storage.ErrInvalidToken
	case !ok:
		return opErr
	default:
		return nil
	}
}

func expectRows(res sql.Result, errNone error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errNone
	}

	return nil
}

// * dsn builds the connection string from the postgres section.
func dsn(cfg config.Postgres) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.DBName,
		cfg.SSLMode,
	)
}
