package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/messagely/apiserver/internal/credential"
	"github.com/messagely/apiserver/internal/logging"
	"github.com/messagely/apiserver/internal/store"
	"github.com/messagely/apiserver/types"
	"github.com/samber/lo"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidUsername reports whether username is usable as an account name.
// Usernames also name storage paths, so only letters, digits, '_' and '-'
// are allowed.
func ValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, rec store.UserRecord) (store.UserRecord, error)
	GetByUsername(ctx context.Context, username string) (store.UserRecord, error)
	Exists(ctx context.Context, username string) (bool, error)
	UpdateLastLogin(ctx context.Context, username string, at time.Time) error
	List(ctx context.Context) ([]store.UserRecord, error)
}

// CredentialStore hashes secrets one way and checks them later.
type CredentialStore interface {
	Hash(secret string) (string, error)
	Verify(secret, hash string) (bool, error)
}

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Username  string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

// UserService is the user directory: it owns accounts and their
// credentials.
type UserService struct {
	repo  UserRepository
	creds CredentialStore
	now   func() time.Time
}

func NewUserService(repo UserRepository, creds CredentialStore) *UserService {
	return &UserService{
		repo:  repo,
		creds: creds,
		now:   time.Now,
	}
}

// Register creates an account. A taken username is a conflict.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (types.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" {
		return types.User{}, newError(KindBadInput, "username is required")
	}
	if !ValidUsername(in.Username) {
		return types.User{}, newError(KindBadInput, "username may only contain letters, digits, '_' and '-'")
	}
	if in.Password == "" {
		return types.User{}, newError(KindBadInput, "password is required")
	}

	hash, err := s.creds.Hash(in.Password)
	if err != nil {
		if errors.Is(err, credential.ErrSecretTooLong) {
			return types.User{}, &Error{Kind: KindBadInput, Msg: "password must be at most 72 bytes", Err: err}
		}
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	rec, err := s.repo.Create(ctx, store.UserRecord{
		Username:     in.Username,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Phone:        strings.TrimSpace(in.Phone),
		JoinedAt:     now,
		LastLoginAt:  sql.NullTime{Time: now, Valid: true},
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, &Error{Kind: KindConflict, Msg: fmt.Sprintf("username %q already exists", in.Username), Err: err}
		}
		return types.User{}, fmt.Errorf("create user: %w", err)
	}

	logging.FromContext(ctx).Info("user registered", slog.String("username", rec.Username))
	return rec.Public(), nil
}

// Authenticate reports whether password matches the stored credential.
// An unknown username is not found, never a silent false.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (bool, error) {
	rec, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return false, userLookupError(username, err)
	}
	return s.creds.Verify(password, rec.PasswordHash)
}

// TouchLogin records a successful login.
func (s *UserService) TouchLogin(ctx context.Context, username string) error {
	if err := s.repo.UpdateLastLogin(ctx, username, s.now()); err != nil {
		return userLookupError(username, err)
	}
	return nil
}

func (s *UserService) Get(ctx context.Context, username string) (types.User, error) {
	rec, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return types.User{}, userLookupError(username, err)
	}
	return rec.Public(), nil
}

// List returns the display fields of every user ordered by username.
func (s *UserService) List(ctx context.Context) ([]types.UserSummary, error) {
	recs, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return lo.Map(recs, func(rec store.UserRecord, _ int) types.UserSummary {
		return rec.Public().Summary()
	}), nil
}

func (s *UserService) Exists(ctx context.Context, username string) (bool, error) {
	return s.repo.Exists(ctx, username)
}

func userLookupError(username string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return &Error{Kind: KindNotFound, Msg: fmt.Sprintf("user not found: %s", username), Err: err}
	}
	return fmt.Errorf("load user %q: %w", username, err)
}
