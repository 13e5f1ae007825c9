package ledger_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/ledger"
	"github.com/trezcool/payouts/testutil"
)

func money(s string) decimal.Decimal { return core.MustMoney(s) }

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, money(want).Equal(got), "want %s, got %s", want, got)
}

func credit(env *testutil.Env, c ledger.Credit) (ledger.Entry, error) {
	var e ledger.Entry
	err := env.DB.RunInTx(context.Background(), func(exec core.DBExecutor) error {
		var err error
		e, err = env.LedgerSvc.Credit(context.Background(), exec, c)
		return err
	})
	return e, err
}

func TestNewSettings(t *testing.T) {
	settings, err := ledger.NewSettings(core.IncomeConfig{WithdrawMin: "10", WithdrawFeePercent: "2.5"})
	require.NoError(t, err)
	assertMoney(t, "10", settings.WithdrawMin)
	assertMoney(t, "2.5", settings.WithdrawFeePercent)

	_, err = ledger.NewSettings(core.IncomeConfig{WithdrawMin: "ten", WithdrawFeePercent: "5"})
	assert.Error(t, err)
	_, err = ledger.NewSettings(core.IncomeConfig{WithdrawMin: "10"})
	assert.Error(t, err)
}

func TestService_Credit_capping(t *testing.T) {
	env := testutil.NewEnv(t)
	root := env.AddMember(t, "founder", "")
	env.Invest(t, root.ID, 1) // capping limit 300

	tests := []struct {
		name       string
		kind       ledger.Kind
		amount     string
		wantAmount string
		wantLapsed string
		wantCap    string
	}{
		{name: "under the limit", kind: ledger.KindTradingProfit, amount: "250", wantAmount: "250", wantLapsed: "0", wantCap: "50"},
		{name: "partially lapsed", kind: ledger.KindLevelIncome, amount: "80", wantAmount: "50", wantLapsed: "30", wantCap: "0"},
		{name: "fully lapsed", kind: ledger.KindMatrixIncome, amount: "10", wantAmount: "0", wantLapsed: "10", wantCap: "0"},
		{name: "uncapped", kind: ledger.KindRankBonus, amount: "100", wantAmount: "100", wantLapsed: "0", wantCap: "0"},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := credit(env, ledger.Credit{
				MemberID: root.ID,
				Kind:     tt.kind,
				Amount:   money(tt.amount),
				Key:      ledger.Key("test", tt.name),
				Level:    i,
			})
			require.NoError(t, err)
			assert.Equal(t, ledger.WalletIncome, e.Wallet)
			assert.Equal(t, ledger.DirectionCredit, e.Direction)
			assertMoney(t, tt.wantAmount, e.Amount)
			assertMoney(t, tt.amount, e.Requested)
			assertMoney(t, tt.wantLapsed, e.Lapsed())
			assertMoney(t, tt.wantCap, env.Member(t, root.ID).CappingLimit)
		})
	}

	m := env.Member(t, root.ID)
	assertMoney(t, "400", m.IncomeBalance)
	assertMoney(t, "400", m.TotalIncome)
	assert.Len(t, env.EntriesOf(t, root.ID, ledger.IncomeKinds...), len(tests), "lapsed credits are recorded too")
}

func TestService_Credit_errors(t *testing.T) {
	env := testutil.NewEnv(t)
	root := env.AddMember(t, "founder", "")
	env.Invest(t, root.ID, 1)

	_, err := credit(env, ledger.Credit{MemberID: root.ID, Kind: ledger.KindTradingProfit, Amount: money("1"), Key: "profit:1"})
	require.NoError(t, err)

	tests := []struct {
		name string
		c    ledger.Credit
		want error
	}{
		{name: "replayed key", c: ledger.Credit{MemberID: root.ID, Kind: ledger.KindTradingProfit, Amount: money("1"), Key: "profit:1"}, want: ledger.ErrDuplicateEntry},
		{name: "unknown kind", c: ledger.Credit{MemberID: root.ID, Kind: "bonus", Amount: money("1"), Key: "bonus:1"}, want: ledger.ErrUnknownKind},
		{name: "zero amount", c: ledger.Credit{MemberID: root.ID, Kind: ledger.KindTradingProfit, Amount: decimal.Zero, Key: "profit:2"}, want: ledger.ErrNonPositiveAmount},
		{name: "negative amount", c: ledger.Credit{MemberID: root.ID, Kind: ledger.KindTradingProfit, Amount: money("-1"), Key: "profit:3"}, want: ledger.ErrNonPositiveAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := credit(env, tt.c)
			assert.Equal(t, tt.want, errors.Cause(err))
		})
	}

	t.Run("missing key", func(t *testing.T) {
		_, err := credit(env, ledger.Credit{MemberID: root.ID, Kind: ledger.KindTradingProfit, Amount: money("1")})
		assert.Error(t, err)
	})

	m := env.Member(t, root.ID)
	assertMoney(t, "1", m.IncomeBalance)
	assertMoney(t, "299", m.CappingLimit)
}

func TestService_Deposit(t *testing.T) {
	env := testutil.NewEnv(t)
	root := env.AddMember(t, "founder", "")
	ctx := context.Background()

	e, err := env.LedgerSvc.Deposit(ctx, root.ID, money("120.5"), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.WalletFund, e.Wallet)
	assertMoney(t, "120.5", e.BalanceAfter)

	_, err = env.LedgerSvc.Deposit(ctx, root.ID, money("120.5"), "tx-1")
	assert.Equal(t, ledger.ErrDuplicateEntry, errors.Cause(err))

	_, err = env.LedgerSvc.Deposit(ctx, root.ID, money("10"), "")
	require.NoError(t, err)

	m := env.Member(t, root.ID)
	assertMoney(t, "130.5", m.FundBalance)
	assert.True(t, m.TotalIncome.IsZero(), "deposits are not income")
	assert.True(t, m.CappingLimit.IsZero(), "deposits do not raise the capping limit")
}

func TestService_Withdraw(t *testing.T) {
	env := testutil.NewEnv(t)
	root := env.AddMember(t, "founder", "")
	ctx := context.Background()
	_, err := credit(env, ledger.Credit{MemberID: root.ID, Kind: ledger.KindRankBonus, Amount: money("300"), Key: "rank:1"})
	require.NoError(t, err)

	t.Run("below minimum", func(t *testing.T) {
		_, err := env.LedgerSvc.Withdraw(ctx, ledger.NewWithdrawal{MemberID: root.ID, Amount: money("9.99"), Address: "wallet"})
		require.True(t, core.IsValidation(err))
		assert.Equal(t, "amount: must be at least 10", err.Error())
	})

	t.Run("insufficient funds", func(t *testing.T) {
		_, err := env.LedgerSvc.Withdraw(ctx, ledger.NewWithdrawal{MemberID: root.ID, Amount: money("301"), Address: "wallet"})
		assert.Equal(t, ledger.ErrInsufficientFunds, errors.Cause(err))
		assertMoney(t, "300", env.Member(t, root.ID).IncomeBalance)
	})

	var rejected, approved ledger.Withdrawal
	t.Run("pending", func(t *testing.T) {
		rejected, err = env.LedgerSvc.Withdraw(ctx, ledger.NewWithdrawal{MemberID: root.ID, Amount: money("100"), Address: " wallet-a "})
		require.NoError(t, err)
		assert.Equal(t, ledger.WithdrawalPending, rejected.Status)
		assert.Equal(t, "wallet-a", rejected.Address)
		assertMoney(t, "5", rejected.Fee)
		assertMoney(t, "95", rejected.NetAmount)

		approved, err = env.LedgerSvc.Withdraw(ctx, ledger.NewWithdrawal{MemberID: root.ID, Amount: money("50"), Address: "wallet-b"})
		require.NoError(t, err)

		assertMoney(t, "150", env.Member(t, root.ID).IncomeBalance)
		pending, err := env.LedgerSvc.Withdrawals(ctx, root.ID, ledger.WithdrawalPending)
		require.NoError(t, err)
		assert.Len(t, pending, 2)
	})

	t.Run("reject refunds", func(t *testing.T) {
		w, err := env.LedgerSvc.RejectWithdrawal(ctx, rejected.ID)
		require.NoError(t, err)
		assert.Equal(t, ledger.WithdrawalRejected, w.Status)
		assert.True(t, w.ProcessedAt.Valid)

		m := env.Member(t, root.ID)
		assertMoney(t, "250", m.IncomeBalance)
		assertMoney(t, "300", m.TotalIncome) // refunds are not income
		assert.Len(t, env.EntriesOf(t, root.ID, ledger.KindWithdrawalRefund), 1)
	})

	t.Run("approve", func(t *testing.T) {
		w, err := env.LedgerSvc.ApproveWithdrawal(ctx, approved.ID)
		require.NoError(t, err)
		assert.Equal(t, ledger.WithdrawalApproved, w.Status)
		assertMoney(t, "250", env.Member(t, root.ID).IncomeBalance)
	})

	t.Run("processed once", func(t *testing.T) {
		_, err := env.LedgerSvc.ApproveWithdrawal(ctx, approved.ID)
		assert.Equal(t, ledger.ErrWithdrawalHandled, errors.Cause(err))
		_, err = env.LedgerSvc.RejectWithdrawal(ctx, rejected.ID)
		assert.Equal(t, ledger.ErrWithdrawalHandled, errors.Cause(err))
		_, err = env.LedgerSvc.RejectWithdrawal(ctx, "nope")
		assert.Equal(t, ledger.ErrWithdrawalNotFound, errors.Cause(err))
		assertMoney(t, "250", env.Member(t, root.ID).IncomeBalance)
	})

	t.Run("inactive member", func(t *testing.T) {
		_, err := env.MemberSvc.SetActive(ctx, root.ID, false)
		require.NoError(t, err)
		_, err = env.LedgerSvc.Withdraw(ctx, ledger.NewWithdrawal{MemberID: root.ID, Amount: money("20"), Address: "wallet"})
		assert.Equal(t, ledger.ErrMemberInactive, errors.Cause(err))
	})
}

func TestService_Transfer(t *testing.T) {
	env := testutil.NewEnv(t)
	root := env.AddMember(t, "founder", "")
	alice := env.AddMember(t, "alice_01", root.Username)
	env.Fund(t, root.ID, "50")
	ctx := context.Background()

	_, err := env.LedgerSvc.Transfer(ctx, ledger.NewTransfer{FromID: root.ID, ToID: root.ID, Amount: money("1")})
	assert.True(t, core.IsValidation(err))

	entries, err := env.LedgerSvc.Transfer(ctx, ledger.NewTransfer{FromID: root.ID, ToID: alice.ID, Amount: money("30"), Reference: "t-1"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.KindTransferOut, entries[0].Kind)
	assert.Equal(t, ledger.KindTransferIn, entries[1].Kind)
	assert.Equal(t, root.ID, entries[1].SourceMemberID.String)

	_, err = env.LedgerSvc.Transfer(ctx, ledger.NewTransfer{FromID: root.ID, ToID: alice.ID, Amount: money("5"), Reference: "t-1"})
	assert.Equal(t, ledger.ErrDuplicateEntry, errors.Cause(err))

	_, err = env.LedgerSvc.Transfer(ctx, ledger.NewTransfer{FromID: root.ID, ToID: alice.ID, Amount: money("21")})
	assert.Equal(t, ledger.ErrInsufficientFunds, errors.Cause(err))

	assertMoney(t, "20", env.Member(t, root.ID).FundBalance)
	assertMoney(t, "30", env.Member(t, alice.ID).FundBalance)
}
