package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"policyqa-cli/internal/stream"
)

// Transport opens the answer stream for one question.
type Transport interface {
	StreamChat(ctx context.Context, question, conversationID string) (io.ReadCloser, error)
}

// Outcome is the result of one send.
type Outcome struct {
	Phase Phase

	// Set when committed.
	User            *Message
	Message         *Message
	ConversationID  string
	NewConversation bool

	// Set when failed. Reason is the text shown to the user.
	Err    error
	Reason string

	// RestoreInput holds the question on failure and cancellation.
	RestoreInput string

	// Last is the live state at the moment the send ended.
	Last Snapshot
}

// Reconciler drives a single send through its phases.
type Reconciler struct {
	transport Transport
	history   *History
	observer  Observer
	log       *zap.Logger

	newID func() string
	now   func() time.Time

	phase Phase
	state *State
}

func NewReconciler(t Transport, h *History, obs Observer, log *zap.Logger) *Reconciler {
	if obs == nil {
		obs = ObserverFuncs{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		transport: t,
		history:   h,
		observer:  obs,
		log:       log,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

func (r *Reconciler) Phase() Phase {
	return r.phase
}

func (r *Reconciler) transition(to Phase) error {
	if !r.phase.CanTransition(to) {
		err := fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, r.phase, to)
		r.log.Error("phase transition rejected", zap.Error(err))
		return err
	}
	r.phase = to
	return nil
}

// Run performs one send and blocks until it reaches a terminal phase.
// Cancelling ctx yields PhaseCancelled.
func (r *Reconciler) Run(ctx context.Context, question string) Outcome {
	if err := r.transition(PhaseStreaming); err != nil {
		out := Outcome{Phase: r.phase, Err: err, Reason: err.Error()}
		r.observer.OnFinished(out)
		return out
	}

	user := Message{
		ID:             r.newID(),
		ConversationID: r.history.ConversationID(),
		Role:           RoleUser,
		Content:        question,
		CreatedAt:      r.now(),
		Speculative:    true,
	}
	r.state = NewState(user)
	r.history.appendSpeculative(user)

	log := r.log.With(zap.String("send_id", user.ID), zap.String("conversation_id", user.ConversationID))
	log.Info("send started")
	r.observer.OnSnapshot(r.state.Snapshot())

	body, err := r.transport.StreamChat(ctx, question, user.ConversationID)
	if err != nil {
		if ctx.Err() != nil {
			return r.cancel(log)
		}
		return r.fail(log, fmt.Errorf("%w: %w", ErrTransport, err))
	}
	defer body.Close()

	reader := stream.NewReader(body, func(line string, err error) {
		log.Debug("dropped malformed frame", zap.String("line", clip(line, 200)), zap.Error(err))
	})
	defer func() {
		if n := reader.Dropped(); n > 0 {
			log.Info("malformed frames dropped", zap.Int("count", n))
		}
	}()

	for {
		ev, err := reader.Next(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return r.cancel(log)
			case errors.Is(err, io.EOF):
				log.Warn("stream ended without terminal frame", zap.Int("tail_bytes", reader.TailBytes))
				return r.fail(log, ErrIncompleteStream)
			default:
				return r.fail(log, fmt.Errorf("%w: %w", ErrTransport, err))
			}
		}

		if !r.state.Apply(ev) {
			continue
		}
		switch e := ev.(type) {
		case stream.DoneEvent:
			return r.commit(ctx, log, e)
		case stream.ErrorEvent:
			return r.fail(log, &ApplicationError{Message: e.Message})
		default:
			r.observer.OnSnapshot(r.state.Snapshot())
		}
	}
}

func (r *Reconciler) commit(ctx context.Context, log *zap.Logger, done stream.DoneEvent) Outcome {
	known := r.state.User.ConversationID
	convID := done.ConversationID
	if convID == "" {
		convID = known
	}
	if convID == "" {
		return r.fail(log, ErrUnknownConversation)
	}

	if err := r.transition(PhaseCommitted); err != nil {
		return Outcome{Phase: r.phase, Err: err, Reason: err.Error()}
	}

	user := r.state.User
	user.ConversationID = convID
	user.Speculative = false

	msgID := done.MessageID
	if msgID == "" {
		msgID = r.newID()
	}
	snap := r.state.Snapshot()
	assistant := Message{
		ID:             msgID,
		ConversationID: convID,
		Role:           RoleAssistant,
		Content:        snap.Content,
		CreatedAt:      r.now(),
		Sources:        snap.Sources,
		Suggestions:    snap.Suggestions,
	}
	r.history.commit(user, assistant)

	isNew := known == "" || known != convID
	log.Info("send committed",
		zap.String("confirmed_conversation_id", convID),
		zap.String("message_id", msgID),
		zap.Int("tokens", snap.Tokens),
		zap.Bool("new_conversation", isNew))

	if isNew {
		r.refreshConversations(ctx, log, Conversation{ID: convID, CreatedAt: user.CreatedAt})
	}

	out := Outcome{
		Phase:           PhaseCommitted,
		User:            &user,
		Message:         &assistant,
		ConversationID:  convID,
		NewConversation: isNew,
		Last:            snap,
	}
	r.observer.OnFinished(out)
	return out
}

// refreshConversations reloads the list after a new conversation was
// created. If the server cannot be reached the new conversation is still
// added locally.
func (r *Reconciler) refreshConversations(ctx context.Context, log *zap.Logger, created Conversation) {
	if _, err := r.history.Refresh(ctx); err != nil {
		log.Warn("conversation list refresh failed", zap.Error(err))
	}
	r.history.learn(created)
	r.observer.OnConversations(r.history.Conversations())
}

func (r *Reconciler) fail(log *zap.Logger, err error) Outcome {
	if terr := r.transition(PhaseFailed); terr != nil {
		return Outcome{Phase: r.phase, Err: terr, Reason: terr.Error()}
	}
	r.history.retract(r.state.User.ID)
	log.Warn("send failed", zap.Error(err))

	out := Outcome{
		Phase:        PhaseFailed,
		Err:          err,
		Reason:       Reason(err),
		RestoreInput: r.state.User.Content,
		Last:         r.state.Snapshot(),
	}
	r.observer.OnFinished(out)
	return out
}

func (r *Reconciler) cancel(log *zap.Logger) Outcome {
	if err := r.transition(PhaseCancelled); err != nil {
		return Outcome{Phase: r.phase, Err: err, Reason: err.Error()}
	}
	r.history.retract(r.state.User.ID)
	log.Info("send cancelled")

	out := Outcome{
		Phase:        PhaseCancelled,
		RestoreInput: r.state.User.Content,
		Last:         r.state.Snapshot(),
	}
	r.observer.OnFinished(out)
	return out
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
