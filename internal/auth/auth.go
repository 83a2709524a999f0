package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/carlos-dev-research/web-rag-chatbot/internal/lib/jwt"
	sl "github.com/carlos-dev-research/web-rag-chatbot/internal/lib/logger/sl"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/lib/password"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUserExists         = errors.New("user already exists")
)

type Auth struct {
	log         *slog.Logger
	usrSaver    UserSaver
	usrProvider UserProvider
	tokenSaver  TokenSaver
	secret      string
	now         func() time.Time
}

type UserSaver interface {
	CreateUser(ctx context.Context, email string, passHash, salt []byte) error
	DeleteUser(ctx context.Context, email string, passHash []byte, token string) error
}

type UserProvider interface {
	ReadSalt(ctx context.Context, email string) ([]byte, error)
}

type TokenSaver interface {
	CreateToken(ctx context.Context, email string, passHash []byte, token string, expiresAt time.Time) error
	VerifyToken(ctx context.Context, email, token string) (bool, error)
	DeleteToken(ctx context.Context, email, token string) error
}

func New(
	log *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	tokenSaver TokenSaver,
	secret string,
) *Auth {
	return &Auth{
		log:         log,
		usrSaver:    userSaver,
		usrProvider: userProvider,
		tokenSaver:  tokenSaver,
		secret:      secret,
		now:         time.Now,
	}
}

// CreateUser registers email with a freshly generated salt. The password is
// never stored, only its salted hash.
func (a *Auth) CreateUser(ctx context.Context, email, pass string) error {
	const op = "auth.CreateUser"

	log := a.log.With(slog.String("op", op))

	salt, err := password.NewSalt()
	if err != nil {
		log.Error("failed to generate salt", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.usrSaver.CreateUser(ctx, email, password.Hash(pass, salt), salt); err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("user already exists")
			return fmt.Errorf("%s: %w", op, ErrUserExists)
		}

		log.Error("failed to save user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user created")

	return nil
}

// CreateToken checks the credentials and issues a token valid for duration.
// A non-positive duration yields a token that is already expired.
func (a *Auth) CreateToken(ctx context.Context, email, pass string, duration time.Duration) (string, error) {
	const op = "auth.CreateToken"

	log := a.log.With(slog.String("op", op))

	passHash, err := a.hash(ctx, email, pass)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredentials) {
			log.Error("failed to read salt", sl.Err(err))
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	expiresAt := a.now().Add(duration)

	token, err := jwt.NewToken(email, expiresAt, a.secret)
	if err != nil {
		log.Error("failed to generate token", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := a.tokenSaver.CreateToken(ctx, email, passHash, token, expiresAt); err != nil {
		if errors.Is(err, storage.ErrInvalidCredentials) {
			log.Info("invalid credentials")
			return "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		log.Error("failed to save token", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("token issued", slog.Time("expires_at", expiresAt))

	return token, nil
}

// VerifyToken reports whether token is live for email. A token whose
// signature or subject does not match is rejected without a store lookup.
func (a *Auth) VerifyToken(ctx context.Context, email, token string) (bool, error) {
	const op = "auth.VerifyToken"

	sub, err := jwt.Subject(token, a.secret)
	if err != nil || sub != email {
		return false, nil
	}

	ok, err := a.tokenSaver.VerifyToken(ctx, email, token)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return ok, nil
}

// DeleteToken revokes a single token. Other tokens of the same user stay valid.
func (a *Auth) DeleteToken(ctx context.Context, email, token string) error {
	const op = "auth.DeleteToken"

	if err := a.tokenSaver.DeleteToken(ctx, email, token); err != nil {
		if errors.Is(err, storage.ErrInvalidToken) {
			return fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// DeleteUser removes the account together with all its tokens and
// conversations. It requires both a live token and the correct password.
func (a *Auth) DeleteUser(ctx context.Context, email, pass, token string) error {
	const op = "auth.DeleteUser"

	log := a.log.With(slog.String("op", op))

	passHash, err := a.hash(ctx, email, pass)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			// The account is gone or never existed, so no token can be live for it.
			return fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		log.Error("failed to read salt", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.usrSaver.DeleteUser(ctx, email, passHash, token); err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidToken):
			return fmt.Errorf("%s: %w", op, ErrInvalidToken)
		case errors.Is(err, storage.ErrInvalidCredentials):
			log.Info("invalid password on delete")
			return fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		log.Error("failed to delete user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user deleted")

	return nil
}

// hash reads the stored salt and hashes pass with it. For unknown users a
// throwaway salt is hashed so both paths cost the same.
func (a *Auth) hash(ctx context.Context, email, pass string) ([]byte, error) {
	salt, err := a.usrProvider.ReadSalt(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			if dummy, saltErr := password.NewSalt(); saltErr == nil {
				_ = password.Hash(pass, dummy)
			}
			return nil, ErrInvalidCredentials
		}

		return nil, err
	}

	return password.Hash(pass, salt), nil
}
