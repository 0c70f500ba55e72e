package services

import "github.com/messagely/apiserver/types"

// Guard makes authorization decisions for an authenticated identity.
// It holds no state; an empty identity is always unauthenticated.
type Guard struct{}

// ActAs permits identity to operate on resources claimed by username:
// sending as them, reading their profile and threads, exporting them.
func (Guard) ActAs(identity, username string) error {
	if identity == "" {
		return ErrUnauthenticated
	}
	if identity != username {
		return newError(KindForbidden, "%s may not act as %s", identity, username)
	}
	return nil
}

// ListUsers permits any authenticated identity to list the directory.
func (Guard) ListUsers(identity string) error {
	if identity == "" {
		return ErrUnauthenticated
	}
	return nil
}

// ViewMessage permits the sender and the recipient.
func (Guard) ViewMessage(identity string, msg types.Message) error {
	if identity == "" {
		return ErrUnauthenticated
	}
	if identity != msg.FromUsername && identity != msg.ToUsername {
		return newError(KindForbidden, "%s is not a party to message %d", identity, msg.ID)
	}
	return nil
}

// MarkRead permits only the recipient.
func (Guard) MarkRead(identity string, msg types.Message) error {
	if identity == "" {
		return ErrUnauthenticated
	}
	if identity != msg.ToUsername {
		return newError(KindForbidden, "only the recipient may mark message %d as read", msg.ID)
	}
	return nil
}
