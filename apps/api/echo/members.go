package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/ledger"
	"github.com/trezcool/payouts/core/member"
)

type (
	// ActivationRequest switches on trading profit; Date defaults to today.
	ActivationRequest struct {
		Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	}

	ActivationResponse struct {
		MemberID string `json:"member_id"`
		Day      string `json:"day"`
		Created  bool   `json:"created"`
	}
)

type memberApi struct {
	svc      MemberService
	ledger   LedgerService
	validate *validator.Validate
}

func registerMemberAPI(g *echo.Group, auth echo.MiddlewareFunc, svc MemberService, lgr LedgerService, validate *validator.Validate) {
	api := &memberApi{svc: svc, ledger: lgr, validate: validate}

	mg := g.Group("/members", auth)
	mg.GET("", api.query)
	mg.POST("/:id/logins", api.recordLogin)
	mg.POST("/:id/activations", api.activate)
	mg.GET("/:id/entries", api.entries)
}

// Handlers

func (api *memberApi) query(ctx echo.Context) error {
	filter := new(member.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []member.Member{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	members, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying members")
	}
	if members == nil {
		members = []member.Member{}
	}
	return ctx.JSON(http.StatusOK, members)
}

func (api *memberApi) recordLogin(ctx echo.Context) error {
	if err := api.svc.RecordLogin(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *memberApi) activate(ctx echo.Context) error {
	var data ActivationRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ActivationRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	day := core.Today()
	if data.Date != "" {
		var err error
		if day, err = core.ParseDay(data.Date); err != nil {
			return err
		}
	}

	id := ctx.Param("id")
	created, err := api.svc.ActivateDailyProfit(ctx.Request().Context(), id, day)
	if err != nil {
		return err
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	return ctx.JSON(code, ActivationResponse{MemberID: id, Day: core.FormatDay(day), Created: created})
}

func (api *memberApi) entries(ctx echo.Context) error {
	filter := ledger.EntryFilter{MemberID: ctx.Param("id")}
	for _, k := range ctx.QueryParams()["kind"] {
		kind := ledger.Kind(k)
		if !kind.Valid() {
			return core.NewValidationError(nil, core.FieldError{Field: "kind", Error: "unknown kind " + strconv.Quote(k)})
		}
		filter.Kinds = append(filter.Kinds, kind)
	}
	if l := ctx.QueryParam("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 0 {
			return core.NewValidationError(err, core.FieldError{Field: "limit", Error: "must be a positive number"})
		}
		filter.Limit = limit
	}

	entries, err := api.ledger.Entries(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying entries")
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (ar *ActivationRequest) Validate(validate *validator.Validate) error {
	ar.Date = core.CleanString(ar.Date)
	return validate.Struct(ar)
}
