package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticketbot/internal/messaging"
	"ticketbot/internal/models"
	"ticketbot/internal/redisclient"
	"ticketbot/internal/store"
	"ticketbot/internal/util"

	"go.uber.org/zap"
)

// SessionStore loads and persists conversation rows
type SessionStore interface {
	GetOrCreateSession(ctx context.Context, sender string) (*models.Session, error)
	SaveSession(ctx context.Context, session *models.Session, expectedStage models.Stage) error
}

// Locker serializes work per sender
type Locker interface {
	AcquireLockWait(ctx context.Context, name string, ttl, wait time.Duration) (*redisclient.Lock, error)
	ReleaseLock(ctx context.Context, lock *redisclient.Lock) error
}

// Deduper remembers inbound message ids
type Deduper interface {
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ForgetIdempotencyKey(ctx context.Context, key string) error
}

// Sender delivers replies to the chat channel
type Sender interface {
	SendText(ctx context.Context, to, body string, previewURL bool) error
	SetTyping(ctx context.Context, to, inboundMessageID string, state messaging.TypingState) error
}

// EngineOptions tunes locking and dedup windows
type EngineOptions struct {
	LockTTL  time.Duration
	LockWait time.Duration
	DedupTTL time.Duration
}

// Engine runs one inbound message through load, step, persist and reply
type Engine struct {
	machine  *Machine
	sessions SessionStore
	locker   Locker
	dedup    Deduper
	sender   Sender
	opts     EngineOptions
	logger   *zap.Logger
}

// NewEngine creates a conversation engine
func NewEngine(machine *Machine, sessions SessionStore, locker Locker, dedup Deduper, sender Sender, opts EngineOptions) *Engine {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 15 * time.Second
	}
	if opts.LockWait <= 0 {
		opts.LockWait = opts.LockTTL
	}
	if opts.DedupTTL <= 0 {
		opts.DedupTTL = 24 * time.Hour
	}
	return &Engine{
		machine:  machine,
		sessions: sessions,
		locker:   locker,
		dedup:    dedup,
		sender:   sender,
		opts:     opts,
		logger:   util.GetLogger(),
	}
}

// Handle processes one inbound message. Buyer input errors and dependency failures are answered
// in chat; a returned error means the message was not processed and may be redelivered.
func (e *Engine) Handle(ctx context.Context, msg messaging.InboundMessage) error {
	ctx, span := util.StartSpan(ctx, "Engine.Handle")
	defer span.End()

	body, ok := messaging.ExtractText(msg)
	if !ok {
		util.MessagesReceivedTotal.WithLabelValues("skipped").Inc()
		e.logger.Debug("Skipping non-text message",
			zap.String("sender", msg.From),
			zap.String("type", msg.Type))
		return nil
	}

	dedupKey := "inbound:" + msg.ID
	if msg.ID != "" {
		first, err := e.dedup.MarkOnce(ctx, dedupKey, e.opts.DedupTTL)
		if err != nil {
			e.logger.Warn("Dedup check failed, processing anyway", zap.String("message_id", msg.ID), zap.Error(err))
		} else if !first {
			util.MessagesReceivedTotal.WithLabelValues("duplicate").Inc()
			e.logger.Info("Duplicate inbound message", zap.String("message_id", msg.ID))
			return nil
		}
	}

	lock, err := e.locker.AcquireLockWait(ctx, "conversation:"+msg.From, e.opts.LockTTL, e.opts.LockWait)
	if err != nil {
		e.forget(msg.ID, dedupKey)
		util.MessagesReceivedTotal.WithLabelValues("busy").Inc()
		return fmt.Errorf("failed to lock conversation for %s: %w", msg.From, err)
	}
	defer func() {
		if err := e.locker.ReleaseLock(context.Background(), lock); err != nil {
			e.logger.Warn("Failed to release conversation lock", zap.String("sender", msg.From), zap.Error(err))
		}
	}()

	if err := e.sender.SetTyping(ctx, msg.From, msg.ID, messaging.TypingOn); err != nil {
		e.logger.Debug("Typing indicator failed", zap.Error(err))
	}

	start := time.Now()
	replies, err := e.step(ctx, msg.From, body)
	util.ConversationStepLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		util.MessagesReceivedTotal.WithLabelValues("error").Inc()
		e.logger.Error("Conversation step failed",
			zap.String("sender", msg.From),
			zap.Error(err))
		replies = []Reply{text(msgApology)}
	} else {
		util.MessagesReceivedTotal.WithLabelValues("processed").Inc()
	}

	for _, r := range replies {
		if err := e.sender.SendText(ctx, msg.From, r.Text, r.PreviewURL); err != nil {
			e.logger.Error("Failed to send reply", zap.String("sender", msg.From), zap.Error(err))
		}
	}
	return nil
}

// step loads the session, runs the machine and persists the result. A save that loses
// to a concurrent writer (the finalizer completing the session) is retried once on fresh data.
func (e *Engine) step(ctx context.Context, sender, body string) ([]Reply, error) {
	const attempts = 2

	for attempt := 1; ; attempt++ {
		sess, err := e.sessions.GetOrCreateSession(ctx, sender)
		if err != nil {
			return nil, fmt.Errorf("failed to load session: %w", err)
		}

		from := sess.Stage
		next, replies, err := e.machine.Step(ctx, sess, body)
		if err != nil {
			return nil, err
		}

		Encode(next, sess)
		sess.LastMessage = body

		err = e.sessions.SaveSession(ctx, sess, from)
		if errors.Is(err, store.ErrStaleSession) && attempt < attempts {
			e.logger.Info("Session changed during step, retrying", zap.String("sender", sender))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to save session: %w", err)
		}

		if from != sess.Stage {
			util.StageTransitionsTotal.WithLabelValues(string(from), string(sess.Stage)).Inc()
			e.logger.Debug("Stage transition",
				zap.String("sender", sender),
				zap.String("from", string(from)),
				zap.String("to", string(sess.Stage)))
		}
		return replies, nil
	}
}

func (e *Engine) forget(messageID, key string) {
	if messageID == "" {
		return
	}
	if err := e.dedup.ForgetIdempotencyKey(context.Background(), key); err != nil {
		e.logger.Warn("Failed to clear dedup key", zap.String("message_id", messageID), zap.Error(err))
	}
}
