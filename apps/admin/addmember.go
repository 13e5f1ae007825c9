package main

import (
	"context"
	"fmt"

	"github.com/trezcool/payouts/core/member"
)

// addMember validates and registers a new member.Member.
func (cli *commandLine) addMember(nm member.NewMember) error {
	ctx := context.Background()
	if err := nm.Validate(ctx, cli.validate, cli.memberSvc); err != nil {
		return err
	}
	m, err := cli.memberSvc.Register(ctx, nm)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "member %s created (id %s, placed at %s/%d)\n", m.Username, m.ID, m.PlacementID.String, m.PlacementPos)
	return nil
}
