package main

import "context"

func (cli *commandLine) resetPassword(email, pwd string) error {
	return cli.provider.ResetAccountPassword(context.Background(), email, pwd)
}
