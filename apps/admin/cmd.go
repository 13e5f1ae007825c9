package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"syscall"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/income"
	"github.com/trezcool/payouts/core/investment"
	"github.com/trezcool/payouts/core/ledger"
	"github.com/trezcool/payouts/core/member"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type jobRunner interface {
	Jobs() []string
	Has(job string) bool
	Run(ctx context.Context, job string, day time.Time, force bool) (income.JobRun, error)
	RunSequence(ctx context.Context, jobs []string, day time.Time) ([]income.JobRun, error)
}

type commandLine struct {
	db         *sql.DB // nil when not backed by postgres
	out        io.Writer
	validate   *validator.Validate
	translator ut.Translator
	memberSvc  *member.Service
	ledgerSvc  *ledger.Service
	investSvc  *investment.Service
	runner     jobRunner
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                                   - run goose migrations (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  addmember -username U -name N [-email E] [-sponsor S]    - register a member; the password is prompted")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL                   - reset a member's password")
	fmt.Fprintln(cli.out, "  deposit -member U -amount A [-ref R]                     - top up a member's fund wallet")
	fmt.Fprintln(cli.out, "  invest -member U -slot N                                 - buy the package of slot N from the fund wallet")
	fmt.Fprintln(cli.out, "  transfer -from U -to U -amount A [-ref R]                - move funds between fund wallets")
	fmt.Fprintln(cli.out, "  withdraw -member U -amount A -address ADDR               - request a withdrawal from the income wallet")
	fmt.Fprintln(cli.out, "  withdrawal -approve ID | -reject ID                      - process a pending withdrawal")
	fmt.Fprintln(cli.out, "  activate -member U [-date YYYY-MM-DD]                    - activate daily profit (default today)")
	fmt.Fprintln(cli.out, "  runjob -job NAME|daily [-date YYYY-MM-DD] [-force]       - run an income job (default yesterday)")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addMemberCmd := flag.NewFlagSet("addmember", flag.ExitOnError)
	addMemberName := addMemberCmd.String("name", "", "The member's full name.")
	addMemberUname := addMemberCmd.String("username", "", "The member's username.")
	addMemberEmail := addMemberCmd.String("email", "", "The member's email.")
	addMemberSponsor := addMemberCmd.String("sponsor", "", "The sponsor's username. Only the first member has none.")
	addMemberPlacement := addMemberCmd.String("placement", "", "The placement parent's username. Auto-placed if empty.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The member's username or email. The password will be prompted next.")

	depositCmd := flag.NewFlagSet("deposit", flag.ExitOnError)
	depositMember := depositCmd.String("member", "", "The member's username.")
	depositAmount := depositCmd.String("amount", "", "The amount to credit.")
	depositRef := depositCmd.String("ref", "", "The deposit reference; a reference is only credited once.")

	investCmd := flag.NewFlagSet("invest", flag.ExitOnError)
	investMember := investCmd.String("member", "", "The member's username.")
	investSlot := investCmd.Int("slot", 0, "The package slot.")

	transferCmd := flag.NewFlagSet("transfer", flag.ExitOnError)
	transferFrom := transferCmd.String("from", "", "The sender's username.")
	transferTo := transferCmd.String("to", "", "The receiver's username.")
	transferAmount := transferCmd.String("amount", "", "The amount to move.")
	transferRef := transferCmd.String("ref", "", "The transfer reference; a reference is only applied once.")

	withdrawCmd := flag.NewFlagSet("withdraw", flag.ExitOnError)
	withdrawMember := withdrawCmd.String("member", "", "The member's username.")
	withdrawAmount := withdrawCmd.String("amount", "", "The amount to withdraw, fee included.")
	withdrawAddress := withdrawCmd.String("address", "", "The payout address.")

	withdrawalCmd := flag.NewFlagSet("withdrawal", flag.ExitOnError)
	withdrawalApprove := withdrawalCmd.String("approve", "", "The id of the withdrawal to approve.")
	withdrawalReject := withdrawalCmd.String("reject", "", "The id of the withdrawal to reject and refund.")

	activateCmd := flag.NewFlagSet("activate", flag.ExitOnError)
	activateMember := activateCmd.String("member", "", "The member's username.")
	activateDate := activateCmd.String("date", "", "The day to activate (YYYY-MM-DD); defaults to today.")

	runJobCmd := flag.NewFlagSet("runjob", flag.ExitOnError)
	runJobName := runJobCmd.String("job", "", "The job to run, or \"daily\" for the daily sequence: "+strings.Join(cli.runner.Jobs(), ", "))
	runJobDate := runJobCmd.String("date", "", "The settlement day (YYYY-MM-DD); defaults to yesterday.")
	runJobForce := runJobCmd.Bool("force", false, "Run again even if the job completed for that day.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "addmember":
		if err := addMemberCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addMemberUname == "" || *addMemberName == "" {
			addMemberCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addMemberCmd.Usage()
			return errHelp
		}
		return cli.addMember(member.NewMember{
			Name:            *addMemberName,
			Username:        *addMemberUname,
			Email:           *addMemberEmail,
			Password:        pwd,
			PasswordConfirm: pwd,
			Sponsor:         *addMemberSponsor,
			Placement:       *addMemberPlacement,
		})

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "deposit":
		if err := depositCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *depositMember == "" || *depositAmount == "" {
			depositCmd.Usage()
			return errHelp
		}
		return cli.deposit(*depositMember, *depositAmount, *depositRef)

	case "invest":
		if err := investCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *investMember == "" || *investSlot <= 0 {
			investCmd.Usage()
			return errHelp
		}
		return cli.invest(*investMember, *investSlot)

	case "transfer":
		if err := transferCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *transferFrom == "" || *transferTo == "" || *transferAmount == "" {
			transferCmd.Usage()
			return errHelp
		}
		return cli.transfer(*transferFrom, *transferTo, *transferAmount, *transferRef)

	case "withdraw":
		if err := withdrawCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *withdrawMember == "" || *withdrawAmount == "" || *withdrawAddress == "" {
			withdrawCmd.Usage()
			return errHelp
		}
		return cli.withdraw(*withdrawMember, *withdrawAmount, *withdrawAddress)

	case "withdrawal":
		if err := withdrawalCmd.Parse(args[2:]); err != nil {
			return err
		}
		if (*withdrawalApprove == "") == (*withdrawalReject == "") {
			withdrawalCmd.Usage()
			return errHelp
		}
		if *withdrawalApprove != "" {
			return cli.processWithdrawal(*withdrawalApprove, true)
		}
		return cli.processWithdrawal(*withdrawalReject, false)

	case "activate":
		if err := activateCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *activateMember == "" {
			activateCmd.Usage()
			return errHelp
		}
		return cli.activate(*activateMember, *activateDate)

	case "runjob":
		if err := runJobCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *runJobName == "" {
			runJobCmd.Usage()
			return errHelp
		}
		return cli.runJob(*runJobName, *runJobDate, *runJobForce)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) readPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", pkgerrors.Wrap(err, "reading password")
	}
	return string(pwd), nil
}

// describe renders validation errors as "field: message" lines.
func (cli *commandLine) describe(err error) string {
	switch vErr := pkgerrors.Cause(err).(type) {
	case validator.ValidationErrors:
		fldErrs := core.TranslateErrors(vErr, cli.translator)
		lines := make([]string, 0, len(fldErrs))
		for fld, msg := range fldErrs {
			lines = append(lines, fld+": "+msg)
		}
		sort.Strings(lines)
		return strings.Join(lines, "\n")
	case *core.ValidationError:
		if len(vErr.Fields) == 0 {
			return vErr.Error()
		}
		lines := make([]string, 0, len(vErr.Fields))
		for _, f := range vErr.Fields {
			lines = append(lines, f.Field+": "+f.Error)
		}
		return strings.Join(lines, "\n")
	default:
		return err.Error()
	}
}

func (cli *commandLine) getMember(ctx context.Context, uname string) (member.Member, error) {
	m, err := cli.memberSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return member.Member{}, pkgerrors.Wrapf(err, "finding %q", uname)
	}
	return m, nil
}
