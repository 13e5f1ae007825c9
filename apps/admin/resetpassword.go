package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) resetPassword(uname, pwd string) error {
	if err := cli.memberSvc.ResetPassword(context.Background(), uname, pwd); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "password of %s updated\n", uname)
	return nil
}
