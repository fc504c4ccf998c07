package identitysvc

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/unitrack/unitrack/core/identity"
	"github.com/unitrack/unitrack/storage/docstore"
)

// UpsertAccount creates the account for email, or resets its password
// if one exists. It never touches the current session; meant for
// operator tooling, not the sign-up flow.
func (p *Provider) UpsertAccount(ctx context.Context, email, password string) (string, error) {
	email, err := cleanEmail(email)
	if err != nil {
		return "", err
	}

	acct, err := p.getAccountByEmail(ctx, email)
	if err == nil {
		return acct.ID, p.setPassword(ctx, acct.ID, password)
	}
	if identity.CodeOf(err) != identity.CodeUserNotFound {
		return "", err
	}

	if len(password) < minPasswordLen {
		return "", identity.NewError(identity.CodeWeakPassword, "password too short")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return p.store.Add(ctx, accountsPath, docstore.Document{
		"email":        email,
		"passwordHash": string(hash),
		"createdAt":    docstore.ServerTimestamp,
	})
}

// ResetAccountPassword sets a new password on the account for email.
func (p *Provider) ResetAccountPassword(ctx context.Context, email, password string) error {
	email, err := cleanEmail(email)
	if err != nil {
		return err
	}
	acct, err := p.getAccountByEmail(ctx, email)
	if err != nil {
		return err
	}
	return p.setPassword(ctx, acct.ID, password)
}
