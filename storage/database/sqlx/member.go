package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/member"
)

const memberColumns = `id, name, username, COALESCE(email, '') AS email, password_hash, is_active,
	refer_id, placement_id, placement_pos, rank, capping_limit, income_balance, fund_balance,
	total_income, login_count, last_login, created_at, updated_at`

var memberOrderings = map[string]bool{
	"username": true, "created_at": true, "rank": true, "total_income": true, "name": true,
}

type memberRepository struct {
	db *sqlx.DB
}

var _ member.Repository = (*memberRepository)(nil)

func NewMemberRepository(db *sqlx.DB) *memberRepository {
	return &memberRepository{db: db}
}

func (repo *memberRepository) exec(execs []core.DBExecutor) core.DBExecutor {
	return core.GetExec(repo.db, execs)
}

func (repo *memberRepository) CheckUniqueness(ctx context.Context, username, email string, exec ...core.DBExecutor) error {
	var found []struct {
		Username string `db:"username"`
		Email    string `db:"email"`
	}
	q := `SELECT username, COALESCE(email, '') AS email FROM members WHERE username = $1 OR (email = $2 AND $2 <> '') LIMIT 2`
	if err := repo.exec(exec).SelectContext(ctx, &found, q, username, email); err != nil {
		return errors.Wrap(err, "checking uniqueness")
	}
	for _, f := range found {
		if f.Username == username {
			return member.ErrUsernameExists
		}
	}
	if len(found) > 0 {
		return member.ErrEmailExists
	}
	return nil
}

func (repo *memberRepository) CountMembers(ctx context.Context, exec ...core.DBExecutor) (int, error) {
	var n int
	err := repo.exec(exec).GetContext(ctx, &n, `SELECT COUNT(*) FROM members`)
	return n, err
}

func (repo *memberRepository) CreateMember(ctx context.Context, m member.Member, exec ...core.DBExecutor) (member.Member, error) {
	q := `INSERT INTO members (id, name, username, email, password_hash, is_active, refer_id, placement_id,
		placement_pos, rank, capping_limit, income_balance, fund_balance, total_income, login_count, created_at, updated_at)
	VALUES (:id, :name, :username, NULLIF(:email, ''), :password_hash, :is_active, :refer_id, :placement_id,
		:placement_pos, :rank, :capping_limit, :income_balance, :fund_balance, :total_income, :login_count, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.exec(exec), q, m); err != nil {
		return member.Member{}, uniqueMemberErr(err)
	}
	return m, nil
}

// uniqueMemberErr maps a unique_violation on members to the matching domain error.
func uniqueMemberErr(err error) error {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	if !ok || pqErr.Code != "23505" {
		return err
	}
	switch pqErr.Constraint {
	case "members_username_key":
		return member.ErrUsernameExists
	case "members_email_key":
		return member.ErrEmailExists
	case "members_placement_id_placement_pos_key":
		return member.ErrPlacementFull
	}
	return err
}

func (repo *memberRepository) get(ctx context.Context, exec core.DBExecutor, q string, args ...interface{}) (member.Member, error) {
	var m member.Member
	if err := exec.GetContext(ctx, &m, q, args...); err != nil {
		if err == sql.ErrNoRows {
			return member.Member{}, member.ErrNotFound
		}
		return member.Member{}, err
	}
	return m, nil
}

func (repo *memberRepository) GetMember(ctx context.Context, filter member.GetFilter, exec ...core.DBExecutor) (member.Member, error) {
	q := `SELECT ` + memberColumns + ` FROM members WHERE `
	switch {
	case filter.ID != "":
		return repo.get(ctx, repo.exec(exec), q+`id = $1`, filter.ID)
	case filter.Username != "":
		return repo.get(ctx, repo.exec(exec), q+`username = $1`, filter.Username)
	case filter.UsernameOrEmail != "":
		return repo.get(ctx, repo.exec(exec), q+`username = $1 OR email = $1 LIMIT 1`, filter.UsernameOrEmail)
	}
	return member.Member{}, member.ErrNotFound
}

func (repo *memberRepository) LockMember(ctx context.Context, id string, exec ...core.DBExecutor) (member.Member, error) {
	return repo.get(ctx, repo.exec(exec), `SELECT `+memberColumns+` FROM members WHERE id = $1 FOR UPDATE`, id)
}

func (repo *memberRepository) LockPlacement(ctx context.Context, exec ...core.DBExecutor) error {
	_, err := repo.exec(exec).ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext('member_placement'))`)
	return err
}

func (repo *memberRepository) QueryMembers(ctx context.Context, filter *member.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]member.Member, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter != nil {
		filter.Clean()
		if filter.Search != "" {
			p := arg("%" + strings.ToLower(filter.Search) + "%")
			conds = append(conds, "(LOWER(name) LIKE "+p+" OR username LIKE "+p+" OR email LIKE "+p+")")
		}
		if filter.IsActive != nil {
			conds = append(conds, "is_active = "+arg(*filter.IsActive))
		}
		if filter.MinRank > 0 {
			conds = append(conds, "rank >= "+arg(filter.MinRank))
		}
		if filter.SponsorID != "" {
			conds = append(conds, "refer_id = "+arg(filter.SponsorID))
		}
	}

	q := `SELECT ` + memberColumns + ` FROM members`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	orders := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if memberOrderings[ord.Field] {
			orders = append(orders, ord.String())
		}
	}
	orders = append(orders, "id ASC")
	q += ` ORDER BY ` + strings.Join(orders, ", ")

	members := make([]member.Member, 0)
	err := repo.exec(exec).SelectContext(ctx, &members, q, args...)
	return members, err
}

func (repo *memberRepository) PlacementChildren(ctx context.Context, parentIDs []string, exec ...core.DBExecutor) ([]member.Member, error) {
	children := make([]member.Member, 0)
	q := `SELECT ` + memberColumns + ` FROM members WHERE placement_id = ANY($1) ORDER BY placement_id, placement_pos`
	err := repo.exec(exec).SelectContext(ctx, &children, q, pq.Array(parentIDs))
	return children, err
}

func (repo *memberRepository) ListNodes(ctx context.Context, exec ...core.DBExecutor) ([]member.Node, error) {
	nodes := make([]member.Node, 0)
	q := `SELECT id, refer_id, placement_id, is_active, rank, login_count FROM members`
	err := repo.exec(exec).SelectContext(ctx, &nodes, q)
	return nodes, err
}

func (repo *memberRepository) UpdateMember(ctx context.Context, m member.Member, exec ...core.DBExecutor) (member.Member, error) {
	q := `UPDATE members SET name = :name, username = :username, email = NULLIF(:email, ''),
		password_hash = :password_hash, is_active = :is_active, updated_at = :updated_at
	WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.exec(exec), q, m)
	if err != nil {
		return member.Member{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return member.Member{}, member.ErrNotFound
	}
	return m, nil
}

func (repo *memberRepository) UpdateBalances(ctx context.Context, m member.Member, exec ...core.DBExecutor) error {
	q := `UPDATE members SET capping_limit = :capping_limit, income_balance = :income_balance,
		fund_balance = :fund_balance, total_income = :total_income, updated_at = :updated_at
	WHERE id = :id`
	_, err := sqlx.NamedExecContext(ctx, repo.exec(exec), q, m)
	return err
}

func (repo *memberRepository) SetRank(ctx context.Context, id string, rank int, exec ...core.DBExecutor) error {
	q := `UPDATE members SET rank = $2, updated_at = $3 WHERE id = $1 AND rank < $2`
	_, err := repo.exec(exec).ExecContext(ctx, q, id, rank, core.NowFunc().UTC())
	return err
}

func (repo *memberRepository) IncrementLoginCount(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) error {
	q := `UPDATE members SET login_count = login_count + 1, last_login = $2 WHERE id = $1`
	res, err := repo.exec(exec).ExecContext(ctx, q, id, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return member.ErrNotFound
	}
	return nil
}

func (repo *memberRepository) ResetLoginCounts(ctx context.Context, exec ...core.DBExecutor) (int, error) {
	res, err := repo.exec(exec).ExecContext(ctx, `UPDATE members SET login_count = 0 WHERE login_count <> 0`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (repo *memberRepository) AddActivation(ctx context.Context, id string, day time.Time, exec ...core.DBExecutor) (bool, error) {
	q := `INSERT INTO member_activations (member_id, day, created_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	res, err := repo.exec(exec).ExecContext(ctx, q, id, core.Day(day), core.NowFunc().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (repo *memberRepository) ActivatedOn(ctx context.Context, day time.Time, exec ...core.DBExecutor) (map[string]bool, error) {
	var ids []string
	if err := repo.exec(exec).SelectContext(ctx, &ids, `SELECT member_id FROM member_activations WHERE day = $1`, core.Day(day)); err != nil {
		return nil, err
	}
	activated := make(map[string]bool, len(ids))
	for _, id := range ids {
		activated[id] = true
	}
	return activated, nil
}
