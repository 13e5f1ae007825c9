package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/member"
)

type memberRepository struct {
	db *DB
}

func NewMemberRepository(db *DB) member.Repository {
	return &memberRepository{db: db}
}

func (repo *memberRepository) query() []member.Member {
	members := make([]member.Member, 0, len(repo.db.t.members))
	for _, m := range repo.db.t.members {
		members = append(members, *m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members
}

func (repo *memberRepository) CheckUniqueness(_ context.Context, username, email string, _ ...core.DBExecutor) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, m := range repo.db.t.members {
		if m.Username == username {
			return member.ErrUsernameExists
		}
		if email != "" && m.Email == email {
			return member.ErrEmailExists
		}
	}
	return nil
}

func (repo *memberRepository) CountMembers(_ context.Context, _ ...core.DBExecutor) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return len(repo.db.t.members), nil
}

func (repo *memberRepository) CreateMember(_ context.Context, m member.Member, _ ...core.DBExecutor) (member.Member, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, other := range repo.db.t.members {
		if other.Username == m.Username {
			return member.Member{}, member.ErrUsernameExists
		}
		if m.Email != "" && other.Email == m.Email {
			return member.Member{}, member.ErrEmailExists
		}
		if m.PlacementID.Valid && other.PlacementID == m.PlacementID && other.PlacementPos == m.PlacementPos {
			return member.Member{}, member.ErrPlacementFull
		}
	}
	repo.db.t.members[m.ID] = &m
	return m, nil
}

func (repo *memberRepository) GetMember(_ context.Context, filter member.GetFilter, _ ...core.DBExecutor) (member.Member, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if m, ok := repo.db.t.members[filter.ID]; ok {
			return *m, nil
		}
		return member.Member{}, member.ErrNotFound
	}
	for _, m := range repo.query() {
		switch {
		case filter.Username != "" && m.Username == filter.Username:
			return m, nil
		case filter.UsernameOrEmail != "" && (m.Username == filter.UsernameOrEmail || m.Email == filter.UsernameOrEmail):
			return m, nil
		}
	}
	return member.Member{}, member.ErrNotFound
}

// LockMember is a plain read: transactions are already serialized.
func (repo *memberRepository) LockMember(ctx context.Context, id string, exec ...core.DBExecutor) (member.Member, error) {
	return repo.GetMember(ctx, member.GetFilter{ID: id}, exec...)
}

func (repo *memberRepository) LockPlacement(_ context.Context, _ ...core.DBExecutor) error {
	return nil
}

func (repo *memberRepository) QueryMembers(_ context.Context, filter *member.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]member.Member, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var search string
	if filter != nil {
		filter.Clean()
		search = strings.ToLower(filter.Search)
	}
	members := make([]member.Member, 0)
	for _, m := range repo.query() {
		if filter != nil {
			if search != "" && !(strings.Contains(strings.ToLower(m.Name), search) ||
				strings.Contains(m.Username, search) || strings.Contains(m.Email, search)) {
				continue
			}
			if filter.IsActive != nil && m.IsActive != *filter.IsActive {
				continue
			}
			if filter.MinRank > 0 && m.Rank < filter.MinRank {
				continue
			}
			if filter.SponsorID != "" && m.ReferID.String != filter.SponsorID {
				continue
			}
		}
		members = append(members, m)
	}

	if len(ordering) > 0 {
		ord := ordering[0]
		less := func(a, b member.Member) bool {
			switch ord.Field {
			case "username":
				return a.Username < b.Username
			case "name":
				return a.Name < b.Name
			case "rank":
				return a.Rank < b.Rank
			case "total_income":
				return a.TotalIncome.LessThan(b.TotalIncome)
			default:
				return a.CreatedAt.Before(b.CreatedAt)
			}
		}
		sort.SliceStable(members, func(i, j int) bool {
			if ord.Ascending {
				return less(members[i], members[j])
			}
			return less(members[j], members[i])
		})
	}
	return members, nil
}

func (repo *memberRepository) PlacementChildren(_ context.Context, parentIDs []string, _ ...core.DBExecutor) ([]member.Member, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	parents := make(map[string]bool, len(parentIDs))
	for _, id := range parentIDs {
		parents[id] = true
	}
	children := make([]member.Member, 0)
	for _, m := range repo.query() {
		if m.PlacementID.Valid && parents[m.PlacementID.String] {
			children = append(children, m)
		}
	}
	sort.SliceStable(children, func(i, j int) bool {
		if children[i].PlacementID.String != children[j].PlacementID.String {
			return children[i].PlacementID.String < children[j].PlacementID.String
		}
		return children[i].PlacementPos < children[j].PlacementPos
	})
	return children, nil
}

func (repo *memberRepository) ListNodes(_ context.Context, _ ...core.DBExecutor) ([]member.Node, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	nodes := make([]member.Node, 0, len(repo.db.t.members))
	for _, m := range repo.query() {
		nodes = append(nodes, member.Node{
			ID:          m.ID,
			ReferID:     m.ReferID,
			PlacementID: m.PlacementID,
			IsActive:    m.IsActive,
			Rank:        m.Rank,
			LoginCount:  m.LoginCount,
		})
	}
	return nodes, nil
}

func (repo *memberRepository) UpdateMember(_ context.Context, m member.Member, _ ...core.DBExecutor) (member.Member, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.t.members[m.ID]
	if !ok {
		return member.Member{}, member.ErrNotFound
	}
	orig.Name = m.Name
	orig.Username = m.Username
	orig.Email = m.Email
	orig.PasswordHash = m.PasswordHash
	orig.IsActive = m.IsActive
	orig.UpdatedAt = m.UpdatedAt
	return *orig, nil
}

func (repo *memberRepository) UpdateBalances(_ context.Context, m member.Member, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.t.members[m.ID]
	if !ok {
		return member.ErrNotFound
	}
	orig.CappingLimit = m.CappingLimit
	orig.IncomeBalance = m.IncomeBalance
	orig.FundBalance = m.FundBalance
	orig.TotalIncome = m.TotalIncome
	orig.UpdatedAt = m.UpdatedAt
	return nil
}

func (repo *memberRepository) SetRank(_ context.Context, id string, rank int, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if m, ok := repo.db.t.members[id]; ok && m.Rank < rank {
		m.Rank = rank
		m.UpdatedAt = core.NowFunc().UTC()
	}
	return nil
}

func (repo *memberRepository) IncrementLoginCount(_ context.Context, id string, at time.Time, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	m, ok := repo.db.t.members[id]
	if !ok {
		return member.ErrNotFound
	}
	m.LoginCount++
	m.LastLogin = null.TimeFrom(at)
	return nil
}

func (repo *memberRepository) ResetLoginCounts(_ context.Context, _ ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var n int
	for _, m := range repo.db.t.members {
		if m.LoginCount != 0 {
			m.LoginCount = 0
			n++
		}
	}
	return n, nil
}

func (repo *memberRepository) AddActivation(_ context.Context, id string, day time.Time, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.members[id]; !ok {
		return false, member.ErrNotFound
	}
	key := core.FormatDay(day)
	set, ok := repo.db.t.activations[key]
	if !ok {
		set = make(map[string]bool)
		repo.db.t.activations[key] = set
	}
	if set[id] {
		return false, nil
	}
	set[id] = true
	return true, nil
}

func (repo *memberRepository) ActivatedOn(_ context.Context, day time.Time, _ ...core.DBExecutor) (map[string]bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	set := repo.db.t.activations[core.FormatDay(day)]
	activated := make(map[string]bool, len(set))
	for id := range set {
		activated[id] = true
	}
	return activated, nil
}
