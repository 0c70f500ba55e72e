package types

import "time"

// User is the public profile of an account.
// The credential hash never leaves the store layer.
type User struct {
	// Username is the unique, immutable login name.
	Username string `json:"username"`

	// FirstName is the user's given name.
	FirstName string `json:"first_name"`

	// LastName is the user's family name.
	LastName string `json:"last_name"`

	// Phone is the user's contact number, free-form.
	Phone string `json:"phone"`

	// JoinedAt is set once when the account is registered.
	JoinedAt time.Time `json:"join_at"`

	// LastLoginAt is refreshed on each successful login.
	LastLoginAt time.Time `json:"last_login_at"`
}

// Summary returns the display fields of the profile.
func (u User) Summary() UserSummary {
	return UserSummary{
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
	}
}

// UserSummary holds the display fields used in listings and
// as the expanded endpoints of a message.
type UserSummary struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}
