package member

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/payouts/core"
)

// DefaultMatrixWidth is the number of placement children a member can hold.
const DefaultMatrixWidth = 3

var (
	// errors
	ErrNotFound             = errors.New("member not found")
	ErrUsernameExists       = errors.New("a member with this username already exists")
	ErrEmailExists          = errors.New("a member with this email already exists")
	ErrSponsorRequired      = errors.New("a sponsor is required")
	ErrSponsorInactive      = errors.New("sponsor account is deactivated")
	ErrPlacementFull        = errors.New("placement position is full")
	ErrPlacementOutsideTeam = errors.New("placement must be inside the sponsor's team")
)

type (
	Repository interface {
		CheckUniqueness(ctx context.Context, username, email string, exec ...core.DBExecutor) error
		CountMembers(ctx context.Context, exec ...core.DBExecutor) (int, error)
		CreateMember(ctx context.Context, m Member, exec ...core.DBExecutor) (Member, error)
		GetMember(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Member, error)
		// LockMember reads a member and holds its row lock until the transaction ends.
		LockMember(ctx context.Context, id string, exec ...core.DBExecutor) (Member, error)
		// LockPlacement serializes placement decisions until the transaction ends.
		LockPlacement(ctx context.Context, exec ...core.DBExecutor) error
		QueryMembers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Member, error)
		// PlacementChildren returns the members placed directly under any of parentIDs.
		PlacementChildren(ctx context.Context, parentIDs []string, exec ...core.DBExecutor) ([]Member, error)
		ListNodes(ctx context.Context, exec ...core.DBExecutor) ([]Node, error)
		UpdateMember(ctx context.Context, m Member, exec ...core.DBExecutor) (Member, error)
		UpdateBalances(ctx context.Context, m Member, exec ...core.DBExecutor) error
		SetRank(ctx context.Context, id string, rank int, exec ...core.DBExecutor) error
		IncrementLoginCount(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) error
		ResetLoginCounts(ctx context.Context, exec ...core.DBExecutor) (int, error)
		AddActivation(ctx context.Context, id string, day time.Time, exec ...core.DBExecutor) (bool, error)
		ActivatedOn(ctx context.Context, day time.Time, exec ...core.DBExecutor) (map[string]bool, error)
	}

	Service struct {
		db          core.Transactor
		repo        Repository
		matrixWidth int
	}
)

func NewService(db core.Transactor, repo Repository, matrixWidth int) *Service {
	if matrixWidth <= 0 {
		matrixWidth = DefaultMatrixWidth
	}
	return &Service{db: db, repo: repo, matrixWidth: matrixWidth}
}

func (svc *Service) MatrixWidth() int { return svc.matrixWidth }

func (svc *Service) checkUniqueness(ctx context.Context, uname, email string) error {
	return uniquenessError(svc.repo.CheckUniqueness(ctx, uname, email))
}

// uniquenessError turns a duplicate username or email into a ValidationError.
func uniquenessError(err error) error {
	var field string
	cause := errors.Cause(err)
	switch cause {
	case nil:
		return nil
	case ErrUsernameExists:
		field = "username"
	case ErrEmailExists:
		field = "email"
	default:
		return err
	}
	return core.NewValidationError(cause, core.FieldError{Field: field, Error: cause.Error()})
}

// Register creates a Member under its sponsor and places it in the placement matrix.
// NewMember must have been validated.
func (svc *Service) Register(ctx context.Context, nm NewMember) (Member, error) {
	now := core.NowFunc().UTC()
	m := Member{
		ID:            uuid.New().String(),
		Name:          nm.Name,
		Username:      nm.Username,
		Email:         nm.Email,
		IsActive:      true,
		CappingLimit:  decimal.Zero,
		IncomeBalance: decimal.Zero,
		FundBalance:   decimal.Zero,
		TotalIncome:   decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := m.SetPassword(nm.Password); err != nil {
		return Member{}, errors.Wrap(err, "setting password")
	}

	var created Member
	err := svc.db.RunInTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.repo.LockPlacement(ctx, exec); err != nil {
			return errors.Wrap(err, "locking placement")
		}

		if nm.Sponsor == "" {
			cnt, err := svc.repo.CountMembers(ctx, exec)
			if err != nil {
				return errors.Wrap(err, "counting members")
			}
			if cnt > 0 {
				return core.NewValidationError(ErrSponsorRequired, core.FieldError{Field: "sponsor", Error: ErrSponsorRequired.Error()})
			}
		} else {
			sponsor, err := svc.repo.GetMember(ctx, GetFilter{Username: nm.Sponsor}, exec)
			if err != nil {
				if err == ErrNotFound {
					return core.NewValidationError(err, core.FieldError{Field: "sponsor", Error: "sponsor not found"})
				}
				return errors.Wrap(err, "finding sponsor")
			}
			if !sponsor.IsActive {
				return core.NewValidationError(ErrSponsorInactive, core.FieldError{Field: "sponsor", Error: ErrSponsorInactive.Error()})
			}

			parentID, pos, err := svc.findPlacement(ctx, exec, sponsor, nm.Placement)
			if err != nil {
				return err
			}
			m.ReferID = null.StringFrom(sponsor.ID)
			m.PlacementID = null.StringFrom(parentID)
			m.PlacementPos = pos
		}

		var err error
		created, err = svc.repo.CreateMember(ctx, m, exec)
		switch errors.Cause(err) {
		case ErrUsernameExists, ErrEmailExists:
			// lost a race with a concurrent registration
			return uniquenessError(err)
		case ErrPlacementFull:
			return core.NewValidationError(err, core.FieldError{Field: "placement", Error: err.Error()})
		}
		return errors.Wrap(err, "inserting member")
	})
	if err != nil {
		return Member{}, err
	}
	return created, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Member, error) {
	return svc.repo.GetMember(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUsername(ctx context.Context, uname string) (Member, error) {
	return svc.repo.GetMember(ctx, GetFilter{Username: core.CleanString(uname, true /* lower */)})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (Member, error) {
	return svc.repo.GetMember(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Member, error) {
	return svc.repo.QueryMembers(ctx, filter, ordering)
}

// RecordLogin counts a login towards the member's daily rank benefits.
func (svc *Service) RecordLogin(ctx context.Context, id string) error {
	if err := svc.repo.IncrementLoginCount(ctx, id, core.NowFunc().UTC()); err != nil {
		return errors.Wrap(err, "incrementing login count")
	}
	return nil
}

// ActivateDailyProfit switches on trading profit for the member's investments on `day`.
// It returns false when the member had already activated that day.
func (svc *Service) ActivateDailyProfit(ctx context.Context, id string, day time.Time) (bool, error) {
	m, err := svc.repo.GetMember(ctx, GetFilter{ID: id})
	if err != nil {
		return false, err
	}
	if !m.IsActive {
		return false, core.NewValidationError(errors.New("account deactivated"))
	}
	added, err := svc.repo.AddActivation(ctx, id, core.Day(day))
	return added, errors.Wrap(err, "adding activation")
}

func (svc *Service) SetActive(ctx context.Context, id string, active bool) (Member, error) {
	m, err := svc.repo.GetMember(ctx, GetFilter{ID: id})
	if err != nil {
		return Member{}, err
	}
	m.IsActive = active
	m.UpdatedAt = core.NowFunc().UTC()
	return svc.repo.UpdateMember(ctx, m)
}

func (svc *Service) ResetPassword(ctx context.Context, uname, pwd string) error {
	m, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	if err = m.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "setting password")
	}
	m.UpdatedAt = core.NowFunc().UTC()
	_, err = svc.repo.UpdateMember(ctx, m)
	return errors.Wrap(err, "updating member")
}
