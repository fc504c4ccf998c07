package main

import (
	"context"

	"github.com/unitrack/unitrack/core/auth"
	"github.com/unitrack/unitrack/storage/docstore"
)

// addUser creates the account (or resets its password) and writes the
// role profile it will resolve to at sign-in.
func (cli *commandLine) addUser(email, pwd string, isTeacher bool) error {
	ctx := context.Background()

	uid, err := cli.provider.UpsertAccount(ctx, email, pwd)
	if err != nil {
		return err
	}

	role := auth.RoleStudent
	if isTeacher {
		role = auth.RoleTeacher
	}
	return cli.store.Set(ctx, auth.UsersPath, uid, docstore.Document{
		"email": email,
		"role":  role,
	}, true)
}
