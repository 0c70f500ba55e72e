package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/messagely/apiserver/types"
)

const messageColumns = `m.id, m.from_username, m.to_username, m.body, m.sent_at, m.read_at`

const summaryColumns = `u.username, u.first_name, u.last_name, u.phone`

// MessageRepository handles persistence for messages.
type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a message and returns it with both endpoints expanded.
// An unknown sender or recipient yields ErrInvalidReference.
func (r *MessageRepository) Create(ctx context.Context, from, to, body string, sentAt time.Time) (types.Message, error) {
	const query = `
		WITH m AS (
			INSERT INTO messages (from_username, to_username, body, sent_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id, from_username, to_username, body, sent_at, read_at
		)
		SELECT ` + messageColumns + `,
			f.username, f.first_name, f.last_name, f.phone,
			t.username, t.first_name, t.last_name, t.phone
		FROM m
		JOIN users AS f ON f.username = m.from_username
		JOIN users AS t ON t.username = m.to_username`
	msg, err := scanExpanded(r.db.QueryRowContext(ctx, query, from, to, body, sentAt))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Message{}, ErrInvalidReference
		}
		return types.Message{}, translate(err)
	}
	return msg, nil
}

// Get returns a message with both endpoints expanded.
func (r *MessageRepository) Get(ctx context.Context, id int64) (types.Message, error) {
	const query = `
		SELECT ` + messageColumns + `,
			f.username, f.first_name, f.last_name, f.phone,
			t.username, t.first_name, t.last_name, t.phone
		FROM messages AS m
		JOIN users AS f ON f.username = m.from_username
		JOIN users AS t ON t.username = m.to_username
		WHERE m.id = $1`
	msg, err := scanExpanded(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Message{}, ErrNotFound
		}
		return types.Message{}, err
	}
	return msg, nil
}

// MarkRead stamps read_at if it is still unset. The conditional update
// makes the first writer win; the bool reports whether this call did the
// transition. The returned message carries the stored read_at either way.
func (r *MessageRepository) MarkRead(ctx context.Context, id int64, at time.Time) (types.Message, bool, error) {
	const query = `UPDATE messages SET read_at = $1 WHERE id = $2 AND read_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return types.Message{}, false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Message{}, false, err
	}

	msg, err := r.Get(ctx, id)
	if err != nil {
		return types.Message{}, false, err
	}
	return msg, affected == 1, nil
}

// SentBy lists messages from username in creation order, recipients expanded.
func (r *MessageRepository) SentBy(ctx context.Context, username string) ([]types.Message, error) {
	const query = `
		SELECT ` + messageColumns + `, ` + summaryColumns + `
		FROM messages AS m
		JOIN users AS u ON u.username = m.to_username
		WHERE m.from_username = $1
		ORDER BY m.id`
	return r.listThread(ctx, query, username, func(m *types.Message, u *types.UserSummary) { m.To = u })
}

// ReceivedBy lists messages to username in creation order, senders expanded.
func (r *MessageRepository) ReceivedBy(ctx context.Context, username string) ([]types.Message, error) {
	const query = `
		SELECT ` + messageColumns + `, ` + summaryColumns + `
		FROM messages AS m
		JOIN users AS u ON u.username = m.from_username
		WHERE m.to_username = $1
		ORDER BY m.id`
	return r.listThread(ctx, query, username, func(m *types.Message, u *types.UserSummary) { m.From = u })
}

func (r *MessageRepository) listThread(
	ctx context.Context,
	query, username string,
	attach func(*types.Message, *types.UserSummary),
) ([]types.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]types.Message, 0)
	for rows.Next() {
		var (
			msg    types.Message
			readAt sql.NullTime
			peer   types.UserSummary
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.FromUsername,
			&msg.ToUsername,
			&msg.Body,
			&msg.SentAt,
			&readAt,
			&peer.Username,
			&peer.FirstName,
			&peer.LastName,
			&peer.Phone,
		); err != nil {
			return nil, err
		}
		msg.ReadAt = nullTimePtr(readAt)
		attach(&msg, &peer)
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpanded(row rowScanner) (types.Message, error) {
	var (
		msg      types.Message
		readAt   sql.NullTime
		from, to types.UserSummary
	)
	if err := row.Scan(
		&msg.ID,
		&msg.FromUsername,
		&msg.ToUsername,
		&msg.Body,
		&msg.SentAt,
		&readAt,
		&from.Username,
		&from.FirstName,
		&from.LastName,
		&from.Phone,
		&to.Username,
		&to.FirstName,
		&to.LastName,
		&to.Phone,
	); err != nil {
		return types.Message{}, err
	}
	msg.ReadAt = nullTimePtr(readAt)
	msg.From = &from
	msg.To = &to
	return msg, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
