// Package identity defines the contract with the identity provider that
// owns credentials and the signed-in user session.
package identity

import "context"

// User is the opaque identity the provider hands back after
// authentication.
type User struct {
	UID   string
	Email string
}

type (
	// Provider owns sign-in, sign-up and credential maintenance.
	// Completion errors carry a Code mappable to user-facing categories.
	Provider interface {
		SignIn(ctx context.Context, email, password string) (User, error)
		CreateUser(ctx context.Context, email, password string) (User, error)
		SendPasswordReset(ctx context.Context, email string) error
		// Reauthenticate verifies the current user's password; it fails with
		// CodeNoCurrentUser when nobody is signed in.
		Reauthenticate(ctx context.Context, password string) error
		UpdatePassword(ctx context.Context, newPassword string) error
		SignOut() error
		CurrentUser() (User, bool)
		// OnStateChange subscribes to the auth-state stream; fn receives nil
		// on sign-out. The returned stop func deregisters the subscription
		// and must be called at teardown.
		OnStateChange(fn func(*User)) (stop func())
	}
)

// Code categorizes provider failures for user-facing reporting.
type Code int

const (
	CodeOther Code = iota
	CodeWrongPassword
	CodeInvalidEmail
	CodeUserNotFound
	CodeEmailInUse
	CodeWeakPassword
	CodeNoCurrentUser
)

type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func NewError(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// CodeOf extracts the provider error category; any other error is CodeOther.
func CodeOf(err error) Code {
	if perr, ok := err.(*Error); ok {
		return perr.Code
	}
	return CodeOther
}
