package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/models"
	"go.uber.org/zap"
)

// ProfileChangesChannel is the NOTIFY channel the profiles trigger writes to.
const ProfileChangesChannel = "profile_changes"

// ProfileListener holds one pooled connection in LISTEN and fans change
// events out to the subscribers of the affected user.
type ProfileListener struct {
	pool   *pgxpool.Pool
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers map[string]map[uint64]func(models.ProfileEvent)
	nextID      uint64
}

func NewProfileListener(pool *pgxpool.Pool, logger *zap.Logger) *ProfileListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileListener{
		pool:        pool,
		logger:      logger,
		subscribers: make(map[string]map[uint64]func(models.ProfileEvent)),
	}
}

// Subscribe registers handler for events about userID. The returned func
// removes it and is safe to call more than once.
func (l *ProfileListener) Subscribe(userID string, handler func(models.ProfileEvent)) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	set, ok := l.subscribers[userID]
	if !ok {
		set = make(map[uint64]func(models.ProfileEvent))
		l.subscribers[userID] = set
	}
	set[id] = handler
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			set, ok := l.subscribers[userID]
			if !ok {
				return
			}
			delete(set, id)
			if len(set) == 0 {
				delete(l.subscribers, userID)
			}
		})
	}
}

func (l *ProfileListener) subscriberCount(userID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subscribers[userID])
}

// Run listens until ctx is cancelled, reconnecting with exponential backoff
// when the connection drops.
func (l *ProfileListener) Run(ctx context.Context) error {
	policy := backoff.WithContext(
		backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(0)),
		ctx,
	)

	err := backoff.RetryNotify(func() error {
		err := l.listen(ctx, policy.Reset)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		l.logger.Warn("Profile listener disconnected",
			zap.Error(err),
			zap.Duration("retry_in", wait))
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (l *ProfileListener) listen(ctx context.Context, connected func()) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ProfileChangesChannel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", ProfileChangesChannel, err)
	}
	connected()
	l.logger.Info("Listening for profile changes", zap.String("channel", ProfileChangesChannel))

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		l.dispatch(notification.Payload)
	}
}

func (l *ProfileListener) dispatch(payload string) {
	event, err := DecodeProfileEvent(payload)
	if err != nil {
		l.logger.Warn("Dropping malformed profile notification", zap.Error(err))
		return
	}

	l.mu.RLock()
	set := l.subscribers[event.Record.UserID]
	handlers := make([]func(models.ProfileEvent), 0, len(set))
	for _, handler := range set {
		handlers = append(handlers, handler)
	}
	l.mu.RUnlock()

	l.logger.Debug("Profile notification",
		zap.String("type", event.Type),
		zap.String("user_id", event.Record.UserID),
		zap.Int("subscribers", len(handlers)))

	for _, handler := range handlers {
		handler(event)
	}
}

// DecodeProfileEvent parses a trigger payload of the form
// {"type": TG_OP, "record": row}.
func DecodeProfileEvent(payload string) (models.ProfileEvent, error) {
	var event models.ProfileEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return models.ProfileEvent{}, fmt.Errorf("decode profile event: %w", err)
	}
	if event.Type == "" {
		return models.ProfileEvent{}, fmt.Errorf("decode profile event: missing type")
	}
	if event.Record == nil || event.Record.UserID == "" {
		return models.ProfileEvent{}, fmt.Errorf("decode profile event: missing record user id")
	}
	return event, nil
}
