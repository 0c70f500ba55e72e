package services

import (
	"context"
	"io"

	"github.com/messagely/apiserver/types"
)

// Inbox runs directory and ledger operations on behalf of an authenticated
// identity. Each call is authorized against the identifiers the caller
// claims before anything is loaded, and against the loaded resource after.
type Inbox struct {
	guard    Guard
	users    *UserService
	messages *MessageService
	archive  *ArchiveService
}

// NewInbox wires the inbox. archive may be nil when no object storage is
// configured.
func NewInbox(users *UserService, messages *MessageService, archive *ArchiveService) *Inbox {
	return &Inbox{
		users:    users,
		messages: messages,
		archive:  archive,
	}
}

func (i *Inbox) ListUsers(ctx context.Context, identity string) ([]types.UserSummary, error) {
	if err := i.guard.ListUsers(identity); err != nil {
		return nil, err
	}
	return i.users.List(ctx)
}

func (i *Inbox) GetUser(ctx context.Context, identity, username string) (types.User, error) {
	if err := i.guard.ActAs(identity, username); err != nil {
		return types.User{}, err
	}
	return i.users.Get(ctx, username)
}

// SendMessage sends as from, which must be the caller.
func (i *Inbox) SendMessage(ctx context.Context, identity, from, to, body string) (types.Message, error) {
	if err := i.guard.ActAs(identity, from); err != nil {
		return types.Message{}, err
	}
	return i.messages.Send(ctx, from, to, body)
}

// GetMessage loads message id from owner's mailbox.
func (i *Inbox) GetMessage(ctx context.Context, identity, owner string, id int64) (types.Message, error) {
	if err := i.guard.ActAs(identity, owner); err != nil {
		return types.Message{}, err
	}
	msg, err := i.messages.Get(ctx, id)
	if err != nil {
		return types.Message{}, err
	}
	if err := i.guard.ViewMessage(identity, msg); err != nil {
		return types.Message{}, err
	}
	return msg, nil
}

// MarkRead marks message id read. Only its recipient may do so.
func (i *Inbox) MarkRead(ctx context.Context, identity, owner string, id int64) (types.Message, error) {
	if err := i.guard.ActAs(identity, owner); err != nil {
		return types.Message{}, err
	}
	msg, err := i.messages.Get(ctx, id)
	if err != nil {
		return types.Message{}, err
	}
	if err := i.guard.MarkRead(identity, msg); err != nil {
		return types.Message{}, err
	}
	return i.messages.MarkRead(ctx, id)
}

func (i *Inbox) SentBy(ctx context.Context, identity, username string) ([]types.Message, error) {
	if err := i.guard.ActAs(identity, username); err != nil {
		return nil, err
	}
	return i.messages.SentBy(ctx, username)
}

func (i *Inbox) ReceivedBy(ctx context.Context, identity, username string) ([]types.Message, error) {
	if err := i.guard.ActAs(identity, username); err != nil {
		return nil, err
	}
	return i.messages.ReceivedBy(ctx, username)
}

// ExportThreads writes username's threads to object storage.
func (i *Inbox) ExportThreads(ctx context.Context, identity, username string) (types.Archive, error) {
	if err := i.guard.ActAs(identity, username); err != nil {
		return types.Archive{}, err
	}
	if i.archive == nil {
		return types.Archive{}, ErrArchiveDisabled
	}
	return i.archive.Export(ctx, username)
}

// OpenArchive streams one of username's earlier exports.
func (i *Inbox) OpenArchive(ctx context.Context, identity, username, id string) (io.ReadCloser, error) {
	if err := i.guard.ActAs(identity, username); err != nil {
		return nil, err
	}
	if i.archive == nil {
		return nil, ErrArchiveDisabled
	}
	return i.archive.Open(ctx, username, id)
}
