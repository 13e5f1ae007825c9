package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/member"
)

var (
	// errors
	ErrDuplicateEntry     = errors.New("ledger entry already recorded")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrUnknownKind        = errors.New("unknown ledger entry kind")
	ErrNonPositiveAmount  = errors.New("amount must be greater than 0")
	ErrWithdrawalNotFound = errors.New("withdrawal not found")
	ErrWithdrawalHandled  = errors.New("withdrawal already processed")
	ErrMemberInactive     = errors.New("member account is deactivated")
)

type (
	Repository interface {
		EntryExists(ctx context.Context, key string, exec ...core.DBExecutor) (bool, error)
		InsertEntry(ctx context.Context, e Entry, exec ...core.DBExecutor) error
		QueryEntries(ctx context.Context, filter EntryFilter, exec ...core.DBExecutor) ([]Entry, error)
		CreateWithdrawal(ctx context.Context, w Withdrawal, exec ...core.DBExecutor) error
		// LockWithdrawal reads a withdrawal and holds its row lock until the transaction ends.
		LockWithdrawal(ctx context.Context, id string, exec ...core.DBExecutor) (Withdrawal, error)
		UpdateWithdrawal(ctx context.Context, w Withdrawal, exec ...core.DBExecutor) error
		QueryWithdrawals(ctx context.Context, memberID string, status WithdrawalStatus, exec ...core.DBExecutor) ([]Withdrawal, error)
	}

	// Balances is the part of the member store the ledger writes through.
	Balances interface {
		LockMember(ctx context.Context, id string, exec ...core.DBExecutor) (member.Member, error)
		UpdateBalances(ctx context.Context, m member.Member, exec ...core.DBExecutor) error
	}

	Settings struct {
		WithdrawMin        decimal.Decimal
		WithdrawFeePercent decimal.Decimal
	}

	Service struct {
		db       core.Transactor
		repo     Repository
		balances Balances
		settings Settings
	}
)

// NewSettings reads the withdrawal settings from the income configuration.
func NewSettings(conf core.IncomeConfig) (Settings, error) {
	minimum, err := decimal.NewFromString(conf.WithdrawMin)
	if err != nil {
		return Settings{}, errors.Wrap(err, "parsing withdraw minimum")
	}
	fee, err := decimal.NewFromString(conf.WithdrawFeePercent)
	if err != nil {
		return Settings{}, errors.Wrap(err, "parsing withdraw fee percent")
	}
	return Settings{WithdrawMin: minimum, WithdrawFeePercent: fee}, nil
}

func NewService(db core.Transactor, repo Repository, balances Balances, settings Settings) *Service {
	return &Service{db: db, repo: repo, balances: balances, settings: settings}
}

// Credit adds money to a member's wallet within the caller's transaction.
// Capped kinds are limited by, and consume, the member's remaining capping limit;
// an entry is written even when nothing is left so the key stays spent.
func (svc *Service) Credit(ctx context.Context, exec core.DBExecutor, c Credit) (Entry, error) {
	if !c.Kind.Valid() {
		return Entry{}, ErrUnknownKind
	}
	if !c.Amount.IsPositive() {
		return Entry{}, ErrNonPositiveAmount
	}

	m, err := svc.balances.LockMember(ctx, c.MemberID, exec)
	if err != nil {
		return Entry{}, errors.Wrap(err, "locking member")
	}
	if err = svc.checkKey(ctx, exec, c.Key); err != nil {
		return Entry{}, err
	}

	requested := core.RoundMoney(c.Amount)
	amount := requested
	if c.Kind.Capped() {
		amount = core.MinMoney(requested, m.CappingLimit)
		m.CappingLimit = m.CappingLimit.Sub(amount)
	}

	var balance decimal.Decimal
	switch c.Kind.Wallet() {
	case WalletIncome:
		m.IncomeBalance = m.IncomeBalance.Add(amount)
		balance = m.IncomeBalance
	case WalletFund:
		m.FundBalance = m.FundBalance.Add(amount)
		balance = m.FundBalance
	}
	if c.Kind.CountsIncome() {
		m.TotalIncome = m.TotalIncome.Add(amount)
	}

	now := core.NowFunc().UTC()
	m.UpdatedAt = now
	if err = svc.balances.UpdateBalances(ctx, m, exec); err != nil {
		return Entry{}, errors.Wrap(err, "updating balances")
	}

	e := Entry{
		ID:             uuid.New().String(),
		MemberID:       m.ID,
		Kind:           c.Kind,
		Wallet:         c.Kind.Wallet(),
		Direction:      DirectionCredit,
		Amount:         amount,
		Requested:      requested,
		SourceMemberID: nullID(c.SourceMemberID),
		InvestmentID:   nullID(c.InvestmentID),
		Level:          c.Level,
		BalanceAfter:   balance,
		IdempotencyKey: c.Key,
		Memo:           c.Memo,
		CreatedAt:      now,
	}
	if err = svc.repo.InsertEntry(ctx, e, exec); err != nil {
		return Entry{}, errors.Wrap(err, "inserting entry")
	}
	return e, nil
}

// Debit takes money out of a member's wallet within the caller's transaction.
func (svc *Service) Debit(ctx context.Context, exec core.DBExecutor, d Debit) (Entry, error) {
	if !d.Kind.Valid() {
		return Entry{}, ErrUnknownKind
	}
	if !d.Amount.IsPositive() {
		return Entry{}, ErrNonPositiveAmount
	}

	m, err := svc.balances.LockMember(ctx, d.MemberID, exec)
	if err != nil {
		return Entry{}, errors.Wrap(err, "locking member")
	}
	if err = svc.checkKey(ctx, exec, d.Key); err != nil {
		return Entry{}, err
	}

	amount := core.RoundMoney(d.Amount)
	var balance decimal.Decimal
	switch d.Kind.Wallet() {
	case WalletIncome:
		if m.IncomeBalance.LessThan(amount) {
			return Entry{}, ErrInsufficientFunds
		}
		m.IncomeBalance = m.IncomeBalance.Sub(amount)
		balance = m.IncomeBalance
	case WalletFund:
		if m.FundBalance.LessThan(amount) {
			return Entry{}, ErrInsufficientFunds
		}
		m.FundBalance = m.FundBalance.Sub(amount)
		balance = m.FundBalance
	}

	now := core.NowFunc().UTC()
	m.UpdatedAt = now
	if err = svc.balances.UpdateBalances(ctx, m, exec); err != nil {
		return Entry{}, errors.Wrap(err, "updating balances")
	}

	e := Entry{
		ID:             uuid.New().String(),
		MemberID:       m.ID,
		Kind:           d.Kind,
		Wallet:         d.Kind.Wallet(),
		Direction:      DirectionDebit,
		Amount:         amount,
		Requested:      amount,
		InvestmentID:   nullID(d.InvestmentID),
		BalanceAfter:   balance,
		IdempotencyKey: d.Key,
		Memo:           d.Memo,
		CreatedAt:      now,
	}
	if err = svc.repo.InsertEntry(ctx, e, exec); err != nil {
		return Entry{}, errors.Wrap(err, "inserting entry")
	}
	return e, nil
}

func (svc *Service) checkKey(ctx context.Context, exec core.DBExecutor, key string) error {
	if key == "" {
		return errors.New("missing idempotency key")
	}
	exists, err := svc.repo.EntryExists(ctx, key, exec)
	if err != nil {
		return errors.Wrap(err, "checking idempotency key")
	}
	if exists {
		return ErrDuplicateEntry
	}
	return nil
}

// Deposit tops up a member's fund wallet. `ref` identifies the deposit; replaying it is refused.
func (svc *Service) Deposit(ctx context.Context, memberID string, amount decimal.Decimal, ref string) (Entry, error) {
	if ref == "" {
		ref = uuid.New().String()
	}
	var e Entry
	err := svc.db.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		e, err = svc.Credit(ctx, exec, Credit{
			MemberID: memberID,
			Kind:     KindDeposit,
			Amount:   amount,
			Key:      Key(string(KindDeposit), ref),
			Memo:     "deposit " + ref,
		})
		return err
	})
	return e, err
}

// Withdraw moves `amount` out of the income wallet into a pending withdrawal.
// NewWithdrawal must have been validated.
func (svc *Service) Withdraw(ctx context.Context, nw NewWithdrawal) (Withdrawal, error) {
	if nw.Amount.LessThan(svc.settings.WithdrawMin) {
		return Withdrawal{}, core.NewValidationError(nil, core.FieldError{
			Field: "amount",
			Error: "must be at least " + svc.settings.WithdrawMin.String(),
		})
	}

	amount := core.RoundMoney(nw.Amount)
	fee := core.Percent(amount, svc.settings.WithdrawFeePercent)
	w := Withdrawal{
		ID:        uuid.New().String(),
		MemberID:  nw.MemberID,
		Amount:    amount,
		Fee:       fee,
		NetAmount: amount.Sub(fee),
		Address:   core.CleanString(nw.Address),
		Status:    WithdrawalPending,
		CreatedAt: core.NowFunc().UTC(),
	}

	err := svc.db.RunInTx(ctx, func(exec core.DBExecutor) error {
		m, err := svc.balances.LockMember(ctx, nw.MemberID, exec)
		if err != nil {
			return errors.Wrap(err, "locking member")
		}
		if !m.IsActive {
			return ErrMemberInactive
		}
		if _, err = svc.Debit(ctx, exec, Debit{
			MemberID: nw.MemberID,
			Kind:     KindWithdrawal,
			Amount:   amount,
			Key:      Key(string(KindWithdrawal), w.ID),
			Memo:     "withdrawal to " + w.Address,
		}); err != nil {
			return err
		}
		return errors.Wrap(svc.repo.CreateWithdrawal(ctx, w, exec), "inserting withdrawal")
	})
	if err != nil {
		return Withdrawal{}, err
	}
	return w, nil
}

func (svc *Service) ApproveWithdrawal(ctx context.Context, id string) (Withdrawal, error) {
	return svc.processWithdrawal(ctx, id, WithdrawalApproved)
}

// RejectWithdrawal refunds a pending withdrawal to the income wallet.
func (svc *Service) RejectWithdrawal(ctx context.Context, id string) (Withdrawal, error) {
	return svc.processWithdrawal(ctx, id, WithdrawalRejected)
}

func (svc *Service) processWithdrawal(ctx context.Context, id string, status WithdrawalStatus) (Withdrawal, error) {
	var w Withdrawal
	err := svc.db.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		w, err = svc.repo.LockWithdrawal(ctx, id, exec)
		if err != nil {
			return err
		}
		if w.Status != WithdrawalPending {
			return ErrWithdrawalHandled
		}

		if status == WithdrawalRejected {
			if _, err = svc.Credit(ctx, exec, Credit{
				MemberID: w.MemberID,
				Kind:     KindWithdrawalRefund,
				Amount:   w.Amount,
				Key:      Key(string(KindWithdrawalRefund), w.ID),
				Memo:     "rejected withdrawal " + w.ID,
			}); err != nil {
				return err
			}
		}

		w.Status = status
		w.ProcessedAt = null.TimeFrom(core.NowFunc().UTC())
		return errors.Wrap(svc.repo.UpdateWithdrawal(ctx, w, exec), "updating withdrawal")
	})
	if err != nil {
		return Withdrawal{}, err
	}
	return w, nil
}

func (svc *Service) Withdrawals(ctx context.Context, memberID string, status WithdrawalStatus) ([]Withdrawal, error) {
	return svc.repo.QueryWithdrawals(ctx, memberID, status)
}

// Transfer moves funds between two fund wallets. Both members are locked in id order.
// NewTransfer must have been validated.
func (svc *Service) Transfer(ctx context.Context, nt NewTransfer) ([]Entry, error) {
	if nt.FromID == nt.ToID {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "to_id", Error: "cannot transfer to the same member"})
	}
	ref := nt.Reference
	if ref == "" {
		ref = uuid.New().String()
	}

	var entries []Entry
	err := svc.db.RunInTx(ctx, func(exec core.DBExecutor) error {
		first, second := nt.FromID, nt.ToID
		if second < first {
			first, second = second, first
		}
		for _, id := range []string{first, second} {
			m, err := svc.balances.LockMember(ctx, id, exec)
			if err != nil {
				return errors.Wrap(err, "locking member")
			}
			if !m.IsActive {
				return ErrMemberInactive
			}
		}

		out, err := svc.Debit(ctx, exec, Debit{
			MemberID: nt.FromID,
			Kind:     KindTransferOut,
			Amount:   nt.Amount,
			Key:      Key("transfer", ref, "out"),
			Memo:     "transfer " + ref,
		})
		if err != nil {
			return err
		}
		in, err := svc.Credit(ctx, exec, Credit{
			MemberID:       nt.ToID,
			Kind:           KindTransferIn,
			Amount:         nt.Amount,
			Key:            Key("transfer", ref, "in"),
			SourceMemberID: nt.FromID,
			Memo:           "transfer " + ref,
		})
		if err != nil {
			return err
		}
		entries = []Entry{out, in}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (svc *Service) Entries(ctx context.Context, filter EntryFilter) ([]Entry, error) {
	return svc.repo.QueryEntries(ctx, filter)
}

func nullID(id string) null.String {
	if id == "" {
		return null.String{}
	}
	return null.StringFrom(id)
}
