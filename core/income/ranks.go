package income

import (
	"context"
	"net/mail"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/ledger"
	"github.com/trezcool/payouts/core/member"
)

type (
	RankPromotedData struct {
		Name     string
		RankName string
		Bonus    decimal.Decimal
		Reward   decimal.Decimal
		RewardOn string
	}

	RewardPaidData struct {
		Name     string
		RankName string
		Amount   decimal.Decimal
	}
)

// RankUpdate promotes every active member to the highest rank they qualify for; ranks are never lost.
// Each newly reached rank pays its bonus and schedules its team reward RewardDelayDays later.
func (e *Engine) RankUpdate(ctx context.Context, day time.Time) (Stats, error) {
	day = core.Day(day)
	g, err := e.snapshot(ctx, day)
	if err != nil {
		return Stats{}, err
	}

	var candidates []string
	for _, id := range g.Members() {
		if g.IsActive(id) && e.rules.QualifiedRank(g.Stats(id)) > g.Rank(id) {
			candidates = append(candidates, id)
		}
	}

	st, err := e.forEach(ctx, candidates, func(ctx context.Context, id string) (Stats, error) {
		var (
			promoted member.Member
			reached  []RankRule
		)
		st, err := e.inTx(ctx, func(exec core.DBExecutor, st *Stats) error {
			promoted, reached = member.Member{}, nil
			m, err := e.members.LockMember(ctx, id, exec)
			if err != nil {
				return errors.Wrap(err, "locking member")
			}
			target := e.rules.QualifiedRank(g.Stats(id))
			if !m.IsActive || target <= m.Rank {
				return nil
			}
			st.Processed++

			for _, rr := range e.rules.Ranks {
				if rr.Rank <= m.Rank || rr.Rank > target {
					continue
				}
				if err = e.credit(ctx, exec, st, ledger.Credit{
					MemberID: id,
					Kind:     ledger.KindRankBonus,
					Amount:   rr.Bonus,
					Key:      ledger.Key(string(ledger.KindRankBonus), id, strconv.Itoa(rr.Rank)),
					Memo:     rr.Name + " rank bonus",
				}); err != nil {
					return err
				}
				if rr.Reward.IsPositive() {
					if _, err = e.rewards.CreateReward(ctx, Reward{
						ID:         uuid.New().String(),
						MemberID:   id,
						Rank:       rr.Rank,
						Amount:     rr.Reward,
						Status:     RewardPending,
						EligibleOn: day.AddDate(0, 0, e.rules.RewardDelayDays),
						CreatedAt:  core.NowFunc().UTC(),
					}, exec); err != nil {
						return errors.Wrap(err, "scheduling reward")
					}
				}
				reached = append(reached, rr)
			}

			if err = e.members.SetRank(ctx, id, target, exec); err != nil {
				return errors.Wrap(err, "setting rank")
			}
			promoted = m
			return nil
		})
		if err == nil && len(reached) > 0 {
			e.notifyPromotion(promoted, reached[len(reached)-1], day)
		}
		return st, err
	})
	e.logf("%s %s: %d promotions, %s credited", JobRankUpdate, core.FormatDay(day), st.Processed, st.Credited)
	return st, err
}

// TeamReward pays the pending rewards due on `day` to members still active and holding
// the rank; the others are forfeited.
func (e *Engine) TeamReward(ctx context.Context, day time.Time) (Stats, error) {
	day = core.Day(day)
	due, err := e.rewards.DueRewards(ctx, day)
	if err != nil {
		return Stats{}, errors.Wrap(err, "listing due rewards")
	}

	ids := make([]string, 0, len(due))
	for _, r := range due {
		ids = append(ids, r.ID)
	}
	st, err := e.forEach(ctx, ids, func(ctx context.Context, id string) (Stats, error) {
		var (
			paid   Reward
			payee  member.Member
			isPaid bool
		)
		st, err := e.inTx(ctx, func(exec core.DBExecutor, st *Stats) error {
			isPaid = false
			r, err := e.rewards.LockReward(ctx, id, exec)
			if err != nil {
				return errors.Wrap(err, "locking reward")
			}
			if r.Status != RewardPending || core.Day(r.EligibleOn).After(day) {
				return nil
			}
			st.Processed++

			m, err := e.members.LockMember(ctx, r.MemberID, exec)
			if err != nil {
				return errors.Wrap(err, "locking member")
			}
			if m.IsActive && m.Rank >= r.Rank {
				if err = e.credit(ctx, exec, st, ledger.Credit{
					MemberID: r.MemberID,
					Kind:     ledger.KindTeamReward,
					Amount:   r.Amount,
					Key:      ledger.Key(string(ledger.KindTeamReward), r.ID),
					Memo:     e.rules.RankName(r.Rank) + " team reward",
				}); err != nil {
					return err
				}
				r.Status = RewardPaid
				r.PaidAt = null.TimeFrom(core.NowFunc().UTC())
				paid, payee, isPaid = r, m, true
			} else {
				r.Status = RewardForfeited
			}
			return errors.Wrap(e.rewards.UpdateReward(ctx, r, exec), "updating reward")
		})
		if err == nil && isPaid {
			e.notifyReward(payee, paid)
		}
		return st, err
	})
	e.logf("%s %s: %d rewards, %s credited", JobTeamReward, core.FormatDay(day), st.Processed, st.Credited)
	return st, err
}

// ActiveReward pays each ranked, active member who logged in since the last reset their rank's daily bonus.
func (e *Engine) ActiveReward(ctx context.Context, day time.Time) (Stats, error) {
	day = core.Day(day)
	g, err := e.snapshot(ctx, day)
	if err != nil {
		return Stats{}, err
	}

	var ids []string
	for _, id := range g.Members() {
		if g.IsActive(id) && g.Rank(id) > 0 && g.LoginCount(id) > 0 {
			ids = append(ids, id)
		}
	}

	dayStr := core.FormatDay(day)
	st, err := e.forEach(ctx, ids, func(ctx context.Context, id string) (Stats, error) {
		rr, ok := e.rules.Rank(g.Rank(id))
		if !ok {
			return Stats{}, nil
		}
		return e.inTx(ctx, func(exec core.DBExecutor, st *Stats) error {
			st.Processed++
			return e.credit(ctx, exec, st, ledger.Credit{
				MemberID: id,
				Kind:     ledger.KindActiveReward,
				Amount:   rr.DailyBonus,
				Key:      ledger.Key(string(ledger.KindActiveReward), id, dayStr),
				Memo:     rr.Name + " daily active bonus " + dayStr,
			})
		})
	})
	e.logf("%s %s: %d members, %s credited", JobActiveReward, dayStr, st.Processed, st.Credited)
	return st, err
}

// LoginReset zeroes every member's daily login counter.
func (e *Engine) LoginReset(ctx context.Context, day time.Time) (Stats, error) {
	var n int
	err := e.db.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		n, err = e.members.ResetLoginCounts(ctx, exec)
		return errors.Wrap(err, "resetting login counts")
	})
	if err != nil {
		return Stats{}, err
	}
	e.logf("%s %s: %d members", JobLoginReset, core.FormatDay(day), n)
	return Stats{Processed: n}, nil
}

func (e *Engine) notifyPromotion(m member.Member, rr RankRule, day time.Time) {
	if e.mailer == nil || m.Email == "" {
		return
	}
	e.mailer.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: m.Name, Address: m.Email}},
		Subject:      "Congratulations on your " + rr.Name + " rank",
		TemplateName: "rank_promoted",
		TemplateData: RankPromotedData{
			Name:     m.Name,
			RankName: rr.Name,
			Bonus:    rr.Bonus,
			Reward:   rr.Reward,
			RewardOn: core.FormatDay(day.AddDate(0, 0, e.rules.RewardDelayDays)),
		},
	})
}

func (e *Engine) notifyReward(m member.Member, r Reward) {
	if e.mailer == nil || m.Email == "" {
		return
	}
	e.mailer.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: m.Name, Address: m.Email}},
		Subject:      "Your team reward has been paid",
		TemplateName: "reward_paid",
		TemplateData: RewardPaidData{
			Name:     m.Name,
			RankName: e.rules.RankName(r.Rank),
			Amount:   r.Amount,
		},
	})
}
