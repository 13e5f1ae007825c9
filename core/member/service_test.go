package member_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/member"
	"github.com/trezcool/payouts/testutil"
)

func register(env *testutil.Env, uname, sponsor, placement string) (member.Member, error) {
	return env.MemberSvc.Register(context.Background(), member.NewMember{
		Name:            uname,
		Username:        uname,
		Password:        testutil.Password,
		PasswordConfirm: testutil.Password,
		Sponsor:         sponsor,
		Placement:       placement,
	})
}

func fieldError(t *testing.T, err error) core.FieldError {
	t.Helper()
	vErr, ok := errors.Cause(err).(*core.ValidationError)
	require.True(t, ok, "want *core.ValidationError, got %v", err)
	require.Len(t, vErr.Fields, 1)
	return vErr.Fields[0]
}

func TestService_Register_root(t *testing.T) {
	env := testutil.NewEnv(t)

	root, err := register(env, "founder", "", "")
	require.NoError(t, err)
	assert.True(t, root.IsRoot())
	assert.False(t, root.PlacementID.Valid)
	assert.True(t, root.IsActive)
	assert.True(t, root.CappingLimit.IsZero())

	_, err = register(env, "second", "", "")
	assert.Equal(t, core.FieldError{Field: "sponsor", Error: member.ErrSponsorRequired.Error()}, fieldError(t, err))
}

func TestService_Register_placement(t *testing.T) {
	env := testutil.NewEnv(t)
	root := env.AddMember(t, "founder", "")

	place := func(uname, sponsor string) member.Member {
		m, err := register(env, uname, sponsor, "")
		require.NoError(t, err)
		return m
	}
	a := place("member_a", "founder")
	b := place("member_b", "founder")
	c := place("member_c", "founder")
	for i, m := range []member.Member{a, b, c} {
		assert.Equal(t, root.ID, m.PlacementID.String, m.Username)
		assert.Equal(t, i, m.PlacementPos, m.Username)
	}

	// root is full: breadth-first, children in position order
	d := place("member_d", "founder")
	assert.Equal(t, a.ID, d.PlacementID.String)
	assert.Equal(t, 0, d.PlacementPos)
	assert.Equal(t, root.ID, d.ReferID.String)

	// spillover stays inside the sponsor's own subtree
	e := place("member_e", "member_b")
	assert.Equal(t, b.ID, e.PlacementID.String)
	assert.Equal(t, b.ID, e.ReferID.String)

	f := place("member_f", "founder")
	assert.Equal(t, a.ID, f.PlacementID.String)
	assert.Equal(t, 1, f.PlacementPos)

	t.Run("explicit placement", func(t *testing.T) {
		g, err := register(env, "member_g", "founder", "member_c")
		require.NoError(t, err)
		assert.Equal(t, c.ID, g.PlacementID.String)
		assert.Equal(t, root.ID, g.ReferID.String)

		h, err := register(env, "member_h", "member_b", "member_e")
		require.NoError(t, err)
		assert.Equal(t, e.ID, h.PlacementID.String)
	})

	t.Run("explicit placement errors", func(t *testing.T) {
		tests := []struct {
			name      string
			sponsor   string
			placement string
			want      core.FieldError
		}{
			{name: "outside team", sponsor: "member_b", placement: "member_a",
				want: core.FieldError{Field: "placement", Error: member.ErrPlacementOutsideTeam.Error()}},
			{name: "above sponsor", sponsor: "member_b", placement: "founder",
				want: core.FieldError{Field: "placement", Error: member.ErrPlacementOutsideTeam.Error()}},
			{name: "full", sponsor: "founder", placement: "founder",
				want: core.FieldError{Field: "placement", Error: member.ErrPlacementFull.Error()}},
			{name: "unknown", sponsor: "founder", placement: "nobody",
				want: core.FieldError{Field: "placement", Error: "placement not found"}},
			{name: "unknown sponsor", sponsor: "nobody",
				want: core.FieldError{Field: "sponsor", Error: "sponsor not found"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := register(env, "member_x", tt.sponsor, tt.placement)
				assert.Equal(t, tt.want, fieldError(t, err))
			})
		}
	})

	t.Run("inactive sponsor", func(t *testing.T) {
		_, err := env.MemberSvc.SetActive(context.Background(), c.ID, false)
		require.NoError(t, err)
		_, err = register(env, "member_y", "member_c", "")
		assert.Equal(t, core.FieldError{Field: "sponsor", Error: member.ErrSponsorInactive.Error()}, fieldError(t, err))
	})
}

func TestService_Register_duplicate(t *testing.T) {
	env := testutil.NewEnv(t)
	env.AddMember(t, "founder", "")

	// Register skips the pre-insert uniqueness lookup, as when a concurrent
	// registration wins the race after validation.
	newMember := func(uname, email string) member.NewMember {
		return member.NewMember{
			Name:            uname,
			Username:        uname,
			Email:           email,
			Password:        testutil.Password,
			PasswordConfirm: testutil.Password,
			Sponsor:         "founder",
		}
	}
	_, err := env.MemberSvc.Register(context.Background(), newMember("member_a", "a@payouts.test"))
	require.NoError(t, err)

	tests := []struct {
		name string
		nm   member.NewMember
		want core.FieldError
	}{
		{name: "username", nm: newMember("member_a", "other@payouts.test"),
			want: core.FieldError{Field: "username", Error: member.ErrUsernameExists.Error()}},
		{name: "email", nm: newMember("member_b", "a@payouts.test"),
			want: core.FieldError{Field: "email", Error: member.ErrEmailExists.Error()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.MemberSvc.Register(context.Background(), tt.nm)
			assert.True(t, core.IsValidation(err))
			assert.Equal(t, tt.want, fieldError(t, err))
		})
	}
}

func TestService_RecordLogin(t *testing.T) {
	env := testutil.NewEnv(t)
	root := env.AddMember(t, "founder", "")
	ctx := context.Background()

	require.NoError(t, env.MemberSvc.RecordLogin(ctx, root.ID))
	require.NoError(t, env.MemberSvc.RecordLogin(ctx, root.ID))
	assert.Equal(t, 2, env.Member(t, root.ID).LoginCount)

	assert.Equal(t, member.ErrNotFound, errors.Cause(env.MemberSvc.RecordLogin(ctx, "nobody")))
}

func TestService_ActivateDailyProfit(t *testing.T) {
	env := testutil.NewEnv(t)
	root := env.AddMember(t, "founder", "")
	ctx := context.Background()
	day := testutil.Date(2024, 5, 1)

	created, err := env.MemberSvc.ActivateDailyProfit(ctx, root.ID, day.Add(15*time.Hour))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = env.MemberSvc.ActivateDailyProfit(ctx, root.ID, day)
	require.NoError(t, err)
	assert.False(t, created, "one activation per day")

	activated, err := env.Members.ActivatedOn(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{root.ID: true}, activated)

	_, err = env.MemberSvc.ActivateDailyProfit(ctx, "nobody", day)
	assert.Equal(t, member.ErrNotFound, errors.Cause(err))

	_, err = env.MemberSvc.SetActive(ctx, root.ID, false)
	require.NoError(t, err)
	_, err = env.MemberSvc.ActivateDailyProfit(ctx, root.ID, day.AddDate(0, 0, 1))
	assert.True(t, core.IsValidation(err))
}

func TestService_ResetPassword(t *testing.T) {
	env := testutil.NewEnv(t)
	root := env.AddMember(t, "founder", "")
	ctx := context.Background()

	require.NoError(t, env.MemberSvc.ResetPassword(ctx, " FOUNDER@payouts.test ", "N3w!Password"))
	m := env.Member(t, root.ID)
	assert.NoError(t, m.CheckPassword("N3w!Password"))
	assert.Error(t, m.CheckPassword(testutil.Password))
}
