// Package identitysvc provides a self-hosted identity.Provider backed by
// the document store: bcrypt credentials, cached-session restore and
// emailed password-reset tokens.
package identitysvc

import (
	"context"
	"fmt"
	"net/mail"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/unitrack/unitrack/core"
	"github.com/unitrack/unitrack/core/identity"
	"github.com/unitrack/unitrack/storage/docstore"
)

const (
	accountsPath = "accounts"

	// provider contract: anything shorter is a weak password
	minPasswordLen = 6
)

type account struct {
	ID           string
	Email        string
	PasswordHash []byte
	LastLogin    time.Time
}

func accountFromSnapshot(snap docstore.Snapshot) (account, bool) {
	email, ok := docstore.String(snap.Data, "email")
	if !ok {
		return account{}, false
	}
	hash, ok := docstore.String(snap.Data, "passwordHash")
	if !ok {
		return account{}, false
	}
	acct := account{ID: snap.ID, Email: email, PasswordHash: []byte(hash)}
	acct.LastLogin, _ = docstore.Time(snap.Data, "lastLogin")
	return acct, true
}

type Provider struct {
	store   docstore.Store
	mailSvc core.EmailService
	conf    *core.Config
	logger  core.Logger

	mu        sync.Mutex
	current   *identity.User
	listeners map[int]func(*identity.User)
	nextLID   int

	NowFunc func() time.Time // mockable
}

var _ identity.Provider = (*Provider)(nil)

func NewProvider(store docstore.Store, mailSvc core.EmailService, conf *core.Config, logger core.Logger) *Provider {
	p := &Provider{
		store:     store,
		mailSvc:   mailSvc,
		conf:      conf,
		logger:    logger,
		listeners: make(map[int]func(*identity.User)),
		NowFunc:   time.Now,
	}

	// restore the cached session, if any; an invalid or expired token just
	// means starting signed out
	if usr, err := loadCachedSession(conf); err == nil && usr != nil {
		p.current = usr
	}
	return p
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (identity.User, error) {
	email, err := cleanEmail(email)
	if err != nil {
		return identity.User{}, err
	}

	acct, err := p.getAccountByEmail(ctx, email)
	if err != nil {
		return identity.User{}, err
	}
	if err = bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(password)); err != nil {
		return identity.User{}, identity.NewError(identity.CodeWrongPassword, "wrong password")
	}

	// best effort; a failed lastLogin stamp must not fail the sign-in
	stamp := docstore.Document{"lastLogin": docstore.ServerTimestamp}
	if err = p.store.Set(ctx, accountsPath, acct.ID, stamp, true); err != nil {
		p.logger.Warn(fmt.Sprintf("identity: stamping lastLogin: %v", err), err)
	}

	usr := identity.User{UID: acct.ID, Email: acct.Email}
	p.setCurrent(&usr)
	return usr, nil
}

func (p *Provider) CreateUser(ctx context.Context, email, password string) (identity.User, error) {
	email, err := cleanEmail(email)
	if err != nil {
		return identity.User{}, err
	}
	if len(password) < minPasswordLen {
		return identity.User{}, identity.NewError(identity.CodeWeakPassword,
			fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}

	if _, err = p.getAccountByEmail(ctx, email); err == nil {
		return identity.User{}, identity.NewError(identity.CodeEmailInUse, "email already in use")
	} else if identity.CodeOf(err) != identity.CodeUserNotFound {
		return identity.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return identity.User{}, err
	}
	id, err := p.store.Add(ctx, accountsPath, docstore.Document{
		"email":        email,
		"passwordHash": string(hash),
		"createdAt":    docstore.ServerTimestamp,
	})
	if err != nil {
		return identity.User{}, err
	}

	usr := identity.User{UID: id, Email: email}
	p.setCurrent(&usr)
	return usr, nil
}

func (p *Provider) SendPasswordReset(ctx context.Context, email string) error {
	email, err := cleanEmail(email)
	if err != nil {
		return err
	}
	acct, err := p.getAccountByEmail(ctx, email)
	if err != nil {
		return err
	}

	token, err := p.makeResetToken(acct)
	if err != nil {
		return err
	}
	p.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Address: acct.Email}},
		Subject: "Password Reset",
		BodyStr: fmt.Sprintf(
			"Follow this link to reset your password:\n\n%s/password-reset/%s/%s",
			p.conf.FrontendBaseURL, encodeUID(acct), token,
		),
	})
	return nil
}

// ConfirmPasswordReset completes the emailed reset flow.
func (p *Provider) ConfirmPasswordReset(ctx context.Context, uid, token, newPassword string) error {
	id, err := decodeUID(uid)
	if err != nil {
		return errInvalidToken
	}
	snap, err := p.store.Get(ctx, accountsPath, id)
	if err != nil {
		if err == docstore.ErrNotFound {
			return identity.NewError(identity.CodeUserNotFound, "no account found")
		}
		return err
	}
	acct, ok := accountFromSnapshot(snap)
	if !ok {
		return identity.NewError(identity.CodeUserNotFound, "no account found")
	}
	if err = p.verifyResetToken(acct, token); err != nil {
		return err
	}
	return p.setPassword(ctx, acct.ID, newPassword)
}

func (p *Provider) Reauthenticate(ctx context.Context, password string) error {
	usr, ok := p.CurrentUser()
	if !ok {
		return identity.NewError(identity.CodeNoCurrentUser, "no user signed in")
	}
	acct, err := p.getAccountByEmail(ctx, usr.Email)
	if err != nil {
		return err
	}
	if err = bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(password)); err != nil {
		return identity.NewError(identity.CodeWrongPassword, "wrong password")
	}
	return nil
}

func (p *Provider) UpdatePassword(ctx context.Context, newPassword string) error {
	usr, ok := p.CurrentUser()
	if !ok {
		return identity.NewError(identity.CodeNoCurrentUser, "no user signed in")
	}
	return p.setPassword(ctx, usr.UID, newPassword)
}

func (p *Provider) SignOut() error {
	p.setCurrent(nil)
	return clearCachedSession(p.conf)
}

func (p *Provider) CurrentUser() (identity.User, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return identity.User{}, false
	}
	return *p.current, true
}

func (p *Provider) OnStateChange(fn func(*identity.User)) (stop func()) {
	p.mu.Lock()
	p.nextLID++
	lid := p.nextLID
	p.listeners[lid] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, lid)
		p.mu.Unlock()
	}
}

func (p *Provider) setPassword(ctx context.Context, uid, newPassword string) error {
	if len(newPassword) < minPasswordLen {
		return identity.NewError(identity.CodeWeakPassword,
			fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return p.store.Set(ctx, accountsPath, uid, docstore.Document{"passwordHash": string(hash)}, true)
}

func (p *Provider) setCurrent(usr *identity.User) {
	p.mu.Lock()
	p.current = usr
	fns := make([]func(*identity.User), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	if usr != nil {
		if err := storeCachedSession(p.conf, *usr); err != nil {
			p.logger.Warn(fmt.Sprintf("identity: caching session: %v", err), err)
		}
	}
	for _, fn := range fns {
		fn(usr)
	}
}

func (p *Provider) getAccountByEmail(ctx context.Context, email string) (account, error) {
	snaps, err := p.store.GetAll(ctx, accountsPath, docstore.Query{
		Filters: []docstore.Filter{{Field: "email", Equals: email}},
	})
	if err != nil {
		return account{}, err
	}
	for _, snap := range snaps {
		if acct, ok := accountFromSnapshot(snap); ok {
			return acct, nil
		}
	}
	return account{}, identity.NewError(identity.CodeUserNotFound, "no account found with this email")
}

func cleanEmail(email string) (string, error) {
	email = core.CleanString(email, true /* lower */)
	if _, err := mail.ParseAddress(email); err != nil {
		return "", identity.NewError(identity.CodeInvalidEmail, "invalid email format")
	}
	return email, nil
}
