package member

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/payouts/core"
)

type Member struct {
	ID            string          `json:"id" db:"id"`
	Name          string          `json:"name" db:"name"`
	Username      string          `json:"username" db:"username"`
	Email         string          `json:"email" db:"email"`
	PasswordHash  []byte          `json:"-" db:"password_hash"`
	IsActive      bool            `json:"is_active" db:"is_active"`
	ReferID       null.String     `json:"refer_id" db:"refer_id"`
	PlacementID   null.String     `json:"placement_id" db:"placement_id"`
	PlacementPos  int             `json:"placement_pos" db:"placement_pos"`
	Rank          int             `json:"rank" db:"rank"`
	CappingLimit  decimal.Decimal `json:"capping_limit" db:"capping_limit"`
	IncomeBalance decimal.Decimal `json:"income_balance" db:"income_balance"`
	FundBalance   decimal.Decimal `json:"fund_balance" db:"fund_balance"`
	TotalIncome   decimal.Decimal `json:"total_income" db:"total_income"`
	LoginCount    int             `json:"login_count" db:"login_count"`
	LastLogin     null.Time       `json:"last_login" db:"last_login"` // UTC
	CreatedAt     time.Time       `json:"created_at" db:"created_at"` // UTC
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"` // UTC
}

func (m *Member) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	m.PasswordHash = hash
	return nil
}

func (m *Member) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(m.PasswordHash, []byte(pwd))
}

func (m *Member) IsRoot() bool { return !m.ReferID.Valid }

func (m Member) Person() core.Person {
	return core.Person{ID: m.ID, Username: m.Username, Email: m.Email}
}

// Node is the light view of a Member used to walk the referral and placement trees.
type Node struct {
	ID          string      `db:"id"`
	ReferID     null.String `db:"refer_id"`
	PlacementID null.String `db:"placement_id"`
	IsActive    bool        `db:"is_active"`
	Rank        int         `db:"rank"`
	LoginCount  int         `db:"login_count"`
}

// NewMember contains information needed to register a new Member.
type NewMember struct {
	Name            string `json:"name" validate:"required"`
	Username        string `json:"username" validate:"required,min=6,alphanum_"`
	Email           string `json:"email" validate:"omitempty,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	Sponsor         string `json:"sponsor"`   // username; required unless registering the root member
	Placement       string `json:"placement"` // username; auto-placed under the sponsor if empty
}

func (nm *NewMember) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nm.Name = core.CleanString(nm.Name)
	nm.Username = core.CleanString(nm.Username, true /* lower */)
	nm.Email = core.CleanString(nm.Email, true /* lower */)
	nm.Sponsor = core.CleanString(nm.Sponsor, true /* lower */)
	nm.Placement = core.CleanString(nm.Placement, true /* lower */)

	if err := validate.Struct(nm); err != nil {
		return err
	}
	return svc.checkUniqueness(ctx, nm.Username, nm.Email)
}

type GetFilter struct {
	ID              string
	Username        string
	UsernameOrEmail string
}

type QueryFilter struct {
	Search    string `query:"search"`
	IsActive  *bool  `query:"is_active"`
	MinRank   int    `query:"min_rank"`
	SponsorID string `query:"sponsor"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.SponsorID = core.CleanString(qf.SponsorID)
}
