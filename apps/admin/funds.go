package main

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/investment"
	"github.com/trezcool/payouts/core/ledger"
)

func parseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, core.NewValidationError(err, core.FieldError{Field: "amount", Error: "must be a number"})
	}
	return amount, nil
}

func (cli *commandLine) deposit(uname, amountStr, ref string) error {
	ctx := context.Background()
	amount, err := parseAmount(amountStr)
	if err != nil {
		return err
	}
	m, err := cli.getMember(ctx, uname)
	if err != nil {
		return err
	}
	e, err := cli.ledgerSvc.Deposit(ctx, m.ID, amount, ref)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "deposited %s to %s (entry %s)\n", e.Amount, m.Username, e.ID)
	return nil
}

func (cli *commandLine) invest(uname string, slot int) error {
	ctx := context.Background()
	m, err := cli.getMember(ctx, uname)
	if err != nil {
		return err
	}
	ni := investment.NewInvestment{MemberID: m.ID, Slot: slot}
	if err = cli.validate.Struct(ni); err != nil {
		return err
	}
	inv, err := cli.investSvc.Invest(ctx, ni)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s invested %s in slot %d (investment %s)\n", m.Username, inv.Amount, inv.Slot, inv.ID)
	return nil
}

func (cli *commandLine) transfer(fromUname, toUname, amountStr, ref string) error {
	ctx := context.Background()
	amount, err := parseAmount(amountStr)
	if err != nil {
		return err
	}
	from, err := cli.getMember(ctx, fromUname)
	if err != nil {
		return err
	}
	to, err := cli.getMember(ctx, toUname)
	if err != nil {
		return err
	}
	nt := ledger.NewTransfer{FromID: from.ID, ToID: to.ID, Amount: amount, Reference: ref}
	if err = cli.validate.Struct(nt); err != nil {
		return err
	}
	if _, err = cli.ledgerSvc.Transfer(ctx, nt); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "transferred %s from %s to %s\n", amount, from.Username, to.Username)
	return nil
}

func (cli *commandLine) withdraw(uname, amountStr, address string) error {
	ctx := context.Background()
	amount, err := parseAmount(amountStr)
	if err != nil {
		return err
	}
	m, err := cli.getMember(ctx, uname)
	if err != nil {
		return err
	}
	nw := ledger.NewWithdrawal{MemberID: m.ID, Amount: amount, Address: address}
	if err = cli.validate.Struct(nw); err != nil {
		return err
	}
	w, err := cli.ledgerSvc.Withdraw(ctx, nw)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "withdrawal %s pending: %s (fee %s)\n", w.ID, w.NetAmount, w.Fee)
	return nil
}

func (cli *commandLine) processWithdrawal(id string, approve bool) error {
	ctx := context.Background()
	var (
		w   ledger.Withdrawal
		err error
	)
	if approve {
		w, err = cli.ledgerSvc.ApproveWithdrawal(ctx, id)
	} else {
		w, err = cli.ledgerSvc.RejectWithdrawal(ctx, id)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "withdrawal %s %s\n", w.ID, w.Status)
	return nil
}
