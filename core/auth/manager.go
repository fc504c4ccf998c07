// Package auth owns the authentication session: sign-in/sign-up flows
// against the identity provider and the role resolved from the user's
// profile document, exposed as observable state gating the app.
package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/unitrack/unitrack/core"
	"github.com/unitrack/unitrack/core/identity"
	"github.com/unitrack/unitrack/storage/docstore"
)

// Roles
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
)

// UsersPath is the profile documents collection, keyed by provider UID.
const UsersPath = "users"

// State is the observable session state. Role stays empty from sign-in
// until the profile document lookup resolves it.
type State struct {
	SignedIn  bool
	UserID    string
	Email     string
	Role      string
	Busy      bool
	LastError string
	LastInfo  string
}

func (s State) IsTeacher() bool { return s.SignedIn && s.Role == RoleTeacher }
func (s State) IsStudent() bool { return s.SignedIn && s.Role == RoleStudent }

// Manager drives the session state machine:
// SignedOut -> Authenticating -> SignedIn(role unknown) -> SignedIn(role).
type Manager struct {
	provider identity.Provider
	store    docstore.Store
	logger   core.Logger

	mu        sync.Mutex
	state     State
	observers map[int]func(State)
	nextOID   int

	// notifications queue up under mu and drain on a single flusher, so
	// observers always see snapshots in mutation order
	notifyQueue []notification
	notifying   bool

	stopProvider func()
}

type notification struct {
	state State
	fns   []func(State)
}

func NewManager(provider identity.Provider, store docstore.Store, logger core.Logger) *Manager {
	m := &Manager{
		provider:  provider,
		store:     store,
		logger:    logger,
		observers: make(map[int]func(State)),
	}

	// session restored from the provider's cache, role not yet known
	if usr, ok := provider.CurrentUser(); ok {
		m.state = State{SignedIn: true, UserID: usr.UID, Email: usr.Email}
	}

	// exactly one provider subscription for the manager's lifetime
	m.stopProvider = provider.OnStateChange(func(usr *identity.User) {
		m.onProviderState(usr)
	})
	return m
}

// Close deregisters the provider subscription; the manager must not be
// used afterwards.
func (m *Manager) Close() {
	m.stopProvider()
}

// Subscribe registers a state observer, invoked on every mutation from
// the mutating goroutine. The returned stop func deregisters it.
func (m *Manager) Subscribe(fn func(State)) (stop func()) {
	m.mu.Lock()
	m.nextOID++
	oid := m.nextOID
	m.observers[oid] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.observers, oid)
		m.mu.Unlock()
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	m.mutate(func(s *State) {
		s.Busy = true
		s.LastError = ""
		s.LastInfo = ""
	})

	usr, err := m.provider.SignIn(ctx, email, password)
	if err != nil {
		msg := signInErrorMessage(err)
		m.mutate(func(s *State) {
			s.Busy = false
			s.LastError = msg
		})
		return err
	}

	m.mutate(func(s *State) {
		s.Busy = false
		s.SignedIn = true
		s.UserID = usr.UID
		s.Email = usr.Email
	})
	m.resolveRole(ctx, usr.UID)
	return nil
}

// SignUp creates the identity then merge-writes the profile document.
// Role defaults to student when not supplied.
func (m *Manager) SignUp(ctx context.Context, email, password string, role ...string) error {
	m.mutate(func(s *State) {
		s.Busy = true
		s.LastError = ""
		s.LastInfo = ""
	})

	usr, err := m.provider.CreateUser(ctx, email, password)
	if err != nil {
		msg := signUpErrorMessage(err)
		m.mutate(func(s *State) {
			s.Busy = false
			s.LastError = msg
		})
		return err
	}

	profileRole := RoleStudent
	if len(role) > 0 && role[0] != "" {
		profileRole = role[0]
	}
	profile := docstore.Document{
		"email":     usr.Email,
		"role":      profileRole,
		"createdAt": docstore.ServerTimestamp,
	}
	if err = m.store.Set(ctx, UsersPath, usr.UID, profile, true); err != nil {
		// profile write is best effort; role resolution falls back to student
		m.logger.Error(fmt.Sprintf("auth: writing profile for %q: %v", usr.UID, err), err)
	}

	m.mutate(func(s *State) {
		s.Busy = false
		s.SignedIn = true
		s.UserID = usr.UID
		s.Email = usr.Email
	})
	m.resolveRole(ctx, usr.UID)
	return nil
}

// ResetPassword validates the email locally before any provider call.
func (m *Manager) ResetPassword(ctx context.Context, email string) error {
	m.mutate(func(s *State) {
		s.LastError = ""
		s.LastInfo = ""
	})

	email = core.CleanString(email)
	if email == "" {
		msg := "Please enter your email first."
		m.mutate(func(s *State) { s.LastError = msg })
		return core.NewValidationError(errors.New(msg), core.FieldError{Field: "email", Error: msg})
	}

	if err := m.provider.SendPasswordReset(ctx, email); err != nil {
		msg := resetErrorMessage(err)
		m.mutate(func(s *State) { s.LastError = msg })
		return err
	}

	info := fmt.Sprintf("Password reset link sent to %s.", email)
	m.mutate(func(s *State) { s.LastInfo = info })
	return nil
}

// ChangePassword reauthenticates with the current credentials first; the
// update is only attempted once reauthentication succeeds.
func (m *Manager) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	m.mutate(func(s *State) {
		s.Busy = true
		s.LastError = ""
		s.LastInfo = ""
	})

	fail := func(err error, msg string) error {
		m.mutate(func(s *State) {
			s.Busy = false
			s.LastError = msg
		})
		return err
	}

	if _, ok := m.provider.CurrentUser(); !ok {
		err := identity.NewError(identity.CodeNoCurrentUser, "no user signed in")
		return fail(err, "No user is signed in.")
	}
	if err := m.provider.Reauthenticate(ctx, currentPassword); err != nil {
		return fail(err, signInErrorMessage(err))
	}
	if err := m.provider.UpdatePassword(ctx, newPassword); err != nil {
		return fail(err, signUpErrorMessage(err))
	}

	info := "Password updated."
	m.mutate(func(s *State) {
		s.Busy = false
		s.LastInfo = info
	})
	return nil
}

// SignOut clears the local session state unconditionally; a provider
// failure is still reported through LastError.
func (m *Manager) SignOut() error {
	err := m.provider.SignOut()

	m.mutate(func(s *State) {
		msg := ""
		if err != nil {
			msg = err.Error()
		}
		*s = State{LastError: msg}
	})
	return err
}

// onProviderState mirrors provider auth-state changes (eg. a session
// restored at start, or an out-of-band sign-out).
func (m *Manager) onProviderState(usr *identity.User) {
	if usr == nil {
		m.mutate(func(s *State) {
			*s = State{LastError: s.LastError, LastInfo: s.LastInfo}
		})
		return
	}

	uid := usr.UID
	email := usr.Email
	m.mutate(func(s *State) {
		s.SignedIn = true
		s.UserID = uid
		s.Email = email
	})
	m.resolveRole(context.Background(), uid)
}

// resolveRole reads the profile document; absence or failure defaults to
// student.
func (m *Manager) resolveRole(ctx context.Context, uid string) {
	role := RoleStudent
	snap, err := m.store.Get(ctx, UsersPath, uid)
	if err != nil {
		if err != docstore.ErrNotFound {
			m.logger.Warn(fmt.Sprintf("auth: fetching role for %q: %v", uid, err), err)
		}
	} else if r, ok := docstore.String(snap.Data, "role"); ok {
		role = r
	}

	m.mutate(func(s *State) {
		if s.SignedIn && s.UserID == uid {
			s.Role = role
		}
	})
}

func (m *Manager) mutate(fn func(*State)) {
	m.mu.Lock()
	fn(&m.state)
	fns := make([]func(State), 0, len(m.observers))
	for _, ofn := range m.observers {
		fns = append(fns, ofn)
	}
	m.notifyQueue = append(m.notifyQueue, notification{state: m.state, fns: fns})
	if m.notifying {
		m.mu.Unlock()
		return
	}
	m.notifying = true
	m.mu.Unlock()

	for {
		m.mu.Lock()
		if len(m.notifyQueue) == 0 {
			m.notifying = false
			m.mu.Unlock()
			return
		}
		n := m.notifyQueue[0]
		m.notifyQueue = m.notifyQueue[1:]
		m.mu.Unlock()

		for _, ofn := range n.fns {
			ofn(n.state)
		}
	}
}

// user-facing provider error categories

func signInErrorMessage(err error) string {
	switch identity.CodeOf(err) {
	case identity.CodeWrongPassword:
		return "Incorrect password. Please try again."
	case identity.CodeInvalidEmail:
		return "Invalid email format."
	case identity.CodeUserNotFound:
		return "No account found with this email."
	default:
		return err.Error()
	}
}

func signUpErrorMessage(err error) string {
	switch identity.CodeOf(err) {
	case identity.CodeEmailInUse:
		return "Email already in use. Try logging in instead."
	case identity.CodeInvalidEmail:
		return "Invalid email format."
	case identity.CodeWeakPassword:
		return "Password must be at least 6 characters."
	default:
		return err.Error()
	}
}

func resetErrorMessage(err error) string {
	switch identity.CodeOf(err) {
	case identity.CodeInvalidEmail:
		return "Invalid email address."
	case identity.CodeUserNotFound:
		return "No account found for this email."
	default:
		return err.Error()
	}
}
