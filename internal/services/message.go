package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/messagely/apiserver/internal/logging"
	"github.com/messagely/apiserver/internal/store"
	"github.com/messagely/apiserver/types"
	"github.com/oklog/ulid/v2"
)

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	Create(ctx context.Context, from, to, body string, sentAt time.Time) (types.Message, error)
	Get(ctx context.Context, id int64) (types.Message, error)
	MarkRead(ctx context.Context, id int64, at time.Time) (types.Message, bool, error)
	SentBy(ctx context.Context, username string) ([]types.Message, error)
	ReceivedBy(ctx context.Context, username string) ([]types.Message, error)
}

// UserResolver answers whether a username refers to an existing user.
type UserResolver interface {
	Exists(ctx context.Context, username string) (bool, error)
}

// EventPublisher delivers ledger events to the message queue.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// MessageService is the message ledger.
type MessageService struct {
	repo   MessageRepository
	users  UserResolver
	events EventPublisher
	now    func() time.Time
}

// NewMessageService constructs the ledger. events may be nil, in which case
// no ledger events are published.
func NewMessageService(repo MessageRepository, users UserResolver, events EventPublisher) *MessageService {
	return &MessageService{
		repo:   repo,
		users:  users,
		events: events,
		now:    time.Now,
	}
}

// Send records a message from one user to another. An empty body or an
// unknown recipient is bad input.
func (s *MessageService) Send(ctx context.Context, from, to, body string) (types.Message, error) {
	to = strings.TrimSpace(to)
	if strings.TrimSpace(body) == "" {
		return types.Message{}, newError(KindBadInput, "message body is required")
	}
	if to == "" {
		return types.Message{}, newError(KindBadInput, "recipient is required")
	}

	exists, err := s.users.Exists(ctx, to)
	if err != nil {
		return types.Message{}, fmt.Errorf("resolve recipient: %w", err)
	}
	if !exists {
		return types.Message{}, newError(KindBadInput, "recipient not found: %s", to)
	}

	msg, err := s.repo.Create(ctx, from, to, body, s.now())
	if err != nil {
		if errors.Is(err, store.ErrInvalidReference) {
			return types.Message{}, &Error{Kind: KindBadInput, Msg: "sender or recipient does not exist", Err: err}
		}
		return types.Message{}, fmt.Errorf("create message: %w", err)
	}

	logging.FromContext(ctx).Info("message sent",
		slog.Int64("message_id", msg.ID),
		slog.String("from", msg.FromUsername),
		slog.String("to", msg.ToUsername),
	)
	s.publish(ctx, types.EventMessageSent, msg, msg.SentAt)
	return msg, nil
}

func (s *MessageService) Get(ctx context.Context, id int64) (types.Message, error) {
	msg, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Message{}, messageLookupError(id, err)
	}
	return msg, nil
}

// MarkRead sets read_at on the first call only. Later calls return the
// message unchanged.
func (s *MessageService) MarkRead(ctx context.Context, id int64) (types.Message, error) {
	msg, changed, err := s.repo.MarkRead(ctx, id, s.now())
	if err != nil {
		return types.Message{}, messageLookupError(id, err)
	}
	if changed {
		logging.FromContext(ctx).Info("message read", slog.Int64("message_id", msg.ID))
		s.publish(ctx, types.EventMessageRead, msg, *msg.ReadAt)
	}
	return msg, nil
}

// SentBy lists the messages username sent, recipients expanded.
func (s *MessageService) SentBy(ctx context.Context, username string) ([]types.Message, error) {
	msgs, err := s.repo.SentBy(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("list messages from %q: %w", username, err)
	}
	return msgs, nil
}

// ReceivedBy lists the messages username received, senders expanded.
func (s *MessageService) ReceivedBy(ctx context.Context, username string) ([]types.Message, error) {
	msgs, err := s.repo.ReceivedBy(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("list messages to %q: %w", username, err)
	}
	return msgs, nil
}

// publish runs after the store write has committed, so a failure here is
// logged and does not affect the result of the operation.
func (s *MessageService) publish(ctx context.Context, eventType string, msg types.Message, at time.Time) {
	if s.events == nil {
		return
	}
	logger := logging.FromContext(ctx)

	event := types.MessageEvent{
		ID:           ulid.Make().String(),
		Type:         eventType,
		MessageID:    msg.ID,
		FromUsername: msg.FromUsername,
		ToUsername:   msg.ToUsername,
		At:           at,
	}
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("encode ledger event", slog.String("type", eventType), slog.Any("error", err))
		return
	}

	attrs := map[string]string{
		"event_id":   event.ID,
		"event_type": eventType,
		"message_id": strconv.FormatInt(msg.ID, 10),
	}
	if _, err := s.events.Publish(ctx, eventType, data, attrs); err != nil {
		logger.Warn("publish ledger event",
			slog.String("type", eventType),
			slog.Int64("message_id", msg.ID),
			slog.Any("error", err),
		)
	}
}

func messageLookupError(id int64, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return &Error{Kind: KindNotFound, Msg: fmt.Sprintf("message not found: %d", id), Err: err}
	}
	return fmt.Errorf("load message %d: %w", id, err)
}
