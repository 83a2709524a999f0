// Package chat runs one send-message exchange:
//
//	Authorizing -> Resolving -> Streaming -> Finalizing -> Closed
//
// with Failed reachable from every non-terminal state. The conversation is
// persisted twice. The user's turn is saved before the model is called, and
// the assistant's turn is saved only after the whole reply has been streamed.
// A failed stream therefore leaves the user's message stored and never a
// partial reply.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	resp "github.com/carlos-dev-research/web-rag-chatbot/internal/lib/api/response"
	sl "github.com/carlos-dev-research/web-rag-chatbot/internal/lib/logger/sl"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/llm"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/models"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/session"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInternal     = errors.New("internal error")
)

type State int

const (
	StateAuthorizing State = iota
	StateResolving
	StateStreaming
	StateFinalizing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAuthorizing:
		return "authorizing"
	case StateResolving:
		return "resolving"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Model interface {
	Stream(ctx context.Context, turns []models.Turn) (<-chan llm.Event, error)
	Title(ctx context.Context, text string) (string, error)
}

type SessionOpener interface {
	Open(ctx context.Context, user, token string) (*session.Session, error)
}

// Emitter receives the exchange's output events in order.
type Emitter interface {
	ConversationID(id string) error
	Chunk(fragment string) error
	End() error
	Error(status int, msg string) error
}

type Request struct {
	User           string
	Token          string
	ConversationID string
	Message        string
}

type Orchestrator struct {
	log         *slog.Logger
	sessions    SessionOpener
	model       Model
	saveTimeout time.Duration
}

const defaultSaveTimeout = 5 * time.Second

func New(log *slog.Logger, sessions SessionOpener, model Model, saveTimeout time.Duration) *Orchestrator {
	if saveTimeout <= 0 {
		saveTimeout = defaultSaveTimeout
	}

	return &Orchestrator{
		log:         log,
		sessions:    sessions,
		model:       model,
		saveTimeout: saveTimeout,
	}
}

// Exchange is a prepared send whose user turn is already stored.
type Exchange struct {
	o     *Orchestrator
	log   *slog.Logger
	sess  *session.Session
	id    string
	turns []models.Turn
	state State
}

// Prepare authorizes the caller and resolves the conversation, creating it
// when req.ConversationID is empty. Errors wrap ErrUnauthorized or ErrInternal
// and are reported before any event has been emitted.
func (o *Orchestrator) Prepare(ctx context.Context, req Request) (*Exchange, error) {
	const op = "chat.Orchestrator.Prepare"

	log := o.log.With(slog.String("op", op))

	ex := &Exchange{o: o, log: log, state: StateAuthorizing}

	sess, err := o.sessions.Open(ctx, req.User, req.Token)
	if err != nil {
		ex.state = StateFailed
		if errors.Is(err, session.ErrUnauthorized) {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrUnauthorized, err)
		}

		log.Error("failed to open session", sl.Err(err))
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInternal, err)
	}

	ex.sess = sess
	ex.state = StateResolving

	if err := ex.resolve(ctx, req); err != nil {
		ex.state = StateFailed

		log.Error("failed to resolve conversation", sl.Err(err))
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInternal, err)
	}

	ex.log = ex.log.With(slog.String("conversation_id", ex.id))

	return ex, nil
}

func (e *Exchange) resolve(ctx context.Context, req Request) error {
	userTurn := models.Turn{Role: models.RoleUser, Content: req.Message}

	if req.ConversationID == "" {
		e.turns = []models.Turn{userTurn}

		title, err := e.o.model.Title(ctx, req.Message)
		if err != nil {
			return fmt.Errorf("title: %w", err)
		}

		id, err := e.sess.CreateConversation(ctx, title, e.turns)
		if err != nil {
			return fmt.Errorf("create: %w", err)
		}

		e.id = id

		return nil
	}

	conv, err := e.sess.ReadConversation(ctx, req.ConversationID)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	e.id = conv.ID
	e.turns = append(conv.Turns, userTurn)

	if err := e.sess.UpdateConversation(ctx, e.id, e.turns); err != nil {
		return fmt.Errorf("save user turn: %w", err)
	}

	return nil
}

func (e *Exchange) ConversationID() string { return e.id }

func (e *Exchange) State() State { return e.state }

// Stream emits the conversation id, then the model's reply fragment by
// fragment. On success the reply is stored and the end of message is
// emitted. On failure exactly one error event is emitted, unless the
// emitter itself is what failed.
func (e *Exchange) Stream(ctx context.Context, out Emitter) error {
	const op = "chat.Exchange.Stream"

	if e.state != StateResolving {
		return fmt.Errorf("%s: exchange is %s", op, e.state)
	}

	e.state = StateStreaming

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := out.ConversationID(e.id); err != nil {
		return e.fail(op, fmt.Errorf("deliver conversation id: %w", err), nil)
	}

	events, err := e.o.model.Stream(ctx, e.turns)
	if err != nil {
		return e.fail(op, err, out)
	}

	var reply strings.Builder

loop:
	for ev := range events {
		switch ev.Type {
		case llm.EventTextDelta:
			reply.WriteString(ev.TextDelta)

			if err := out.Chunk(ev.TextDelta); err != nil {
				return e.fail(op, fmt.Errorf("deliver chunk: %w", err), nil)
			}
		case llm.EventError:
			return e.fail(op, ev.Error, out)
		case llm.EventDone:
			break loop
		}
	}

	if err := ctx.Err(); err != nil {
		return e.fail(op, err, nil)
	}

	e.state = StateFinalizing

	turns := append(e.turns, models.Turn{Role: models.RoleAssistant, Content: reply.String()})

	saveCtx, saveCancel := context.WithTimeout(context.WithoutCancel(ctx), e.o.saveTimeout)
	defer saveCancel()

	if err := e.sess.UpdateConversation(saveCtx, e.id, turns); err != nil {
		return e.fail(op, fmt.Errorf("save assistant turn: %w", err), out)
	}

	e.turns = turns

	if err := out.End(); err != nil {
		e.state = StateClosed
		e.log.Warn("reply stored but end of message was not delivered", sl.Err(err))
		return nil
	}

	e.state = StateClosed
	e.log.Info("reply streamed", slog.Int("reply_len", reply.Len()))

	return nil
}

// fail moves the exchange to Failed and, when out is non-nil, emits the
// single terminal error event.
func (e *Exchange) fail(op string, cause error, out Emitter) error {
	e.state = StateFailed

	e.log.Error("stream failed", sl.Err(cause))

	if out != nil {
		if err := out.Error(http.StatusInternalServerError, resp.MsgInternal); err != nil {
			e.log.Warn("failed to deliver error event", sl.Err(err))
		}
	}

	return fmt.Errorf("%s: %w: %w", op, ErrInternal, cause)
}
