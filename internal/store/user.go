package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/messagely/apiserver/types"
)

// UserRecord is the users row as stored, credential hash included.
type UserRecord struct {
	Username     string
	PasswordHash string
	FirstName    string
	LastName     string
	Phone        string
	JoinedAt     time.Time
	LastLoginAt  sql.NullTime
}

// Public projects the record onto the outward profile.
func (r UserRecord) Public() types.User {
	user := types.User{
		Username:  r.Username,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Phone:     r.Phone,
		JoinedAt:  r.JoinedAt,
	}
	if r.LastLoginAt.Valid {
		user.LastLoginAt = r.LastLoginAt.Time
	}
	return user
}

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user. A taken username yields ErrConflict; the
// primary key makes this safe under concurrent registrations.
func (r *UserRepository) Create(ctx context.Context, rec UserRecord) (UserRecord, error) {
	const query = `
		INSERT INTO users (username, password, first_name, last_name, phone, join_at, last_login_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		rec.Username,
		rec.PasswordHash,
		rec.FirstName,
		rec.LastName,
		rec.Phone,
		rec.JoinedAt,
		rec.LastLoginAt,
	); err != nil {
		return UserRecord{}, translate(err)
	}
	return rec, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (UserRecord, error) {
	const query = `
		SELECT username, password, first_name, last_name, phone, join_at, last_login_at
		FROM users
		WHERE username = $1`
	var rec UserRecord
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&rec.Username,
		&rec.PasswordHash,
		&rec.FirstName,
		&rec.LastName,
		&rec.Phone,
		&rec.JoinedAt,
		&rec.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserRecord{}, ErrNotFound
		}
		return UserRecord{}, err
	}
	return rec, nil
}

func (r *UserRepository) Exists(ctx context.Context, username string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, username).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, username string, at time.Time) error {
	const query = `UPDATE users SET last_login_at = $1 WHERE username = $2`
	result, err := r.db.ExecContext(ctx, query, at, username)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns every user ordered by username.
func (r *UserRepository) List(ctx context.Context) ([]UserRecord, error) {
	const query = `
		SELECT username, first_name, last_name, phone, join_at, last_login_at
		FROM users
		ORDER BY username`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]UserRecord, 0)
	for rows.Next() {
		var rec UserRecord
		if err := rows.Scan(
			&rec.Username,
			&rec.FirstName,
			&rec.LastName,
			&rec.Phone,
			&rec.JoinedAt,
			&rec.LastLoginAt,
		); err != nil {
			return nil, err
		}
		users = append(users, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}
