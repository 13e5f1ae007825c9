package echoapi

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/income"
	"github.com/trezcool/payouts/services/scheduler"
)

type (
	JobsResponse struct {
		Jobs     []string            `json:"jobs"`
		Schedule []scheduler.NextRun `json:"schedule"`
	}

	// RunRequest triggers a job; Date defaults to yesterday.
	RunRequest struct {
		Date  string `json:"date" validate:"omitempty,datetime=2006-01-02"`
		Force bool   `json:"force"`
	}
)

type jobApi struct {
	runner   JobRunner
	schedule Schedule
	validate *validator.Validate
}

func registerJobAPI(g *echo.Group, auth echo.MiddlewareFunc, runner JobRunner, schedule Schedule, validate *validator.Validate) {
	api := &jobApi{runner: runner, schedule: schedule, validate: validate}

	jg := g.Group("/jobs", auth)
	jg.GET("", api.list)
	jg.GET("/runs", api.runs)
	jg.POST("/:name/run", api.run)
}

// Handlers

func (api *jobApi) list(ctx echo.Context) error {
	resp := JobsResponse{Jobs: api.runner.Jobs(), Schedule: []scheduler.NextRun{}}
	if api.schedule != nil {
		resp.Schedule = api.schedule.Next()
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *jobApi) runs(ctx echo.Context) error {
	filter := new(income.RunFilter)
	if err := ctx.Bind(filter); err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "limit", Error: "must be a number"})
	}

	runs, err := api.runner.Runs(ctx.Request().Context(), *filter)
	if err != nil {
		return errors.Wrap(err, "querying job runs")
	}
	if runs == nil {
		runs = []income.JobRun{}
	}
	return ctx.JSON(http.StatusOK, runs)
}

func (api *jobApi) run(ctx echo.Context) error {
	var data RunRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RunRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	day, err := core.ParseDay(data.Date)
	if err != nil {
		return err
	}

	// a client hanging up must not abort the run halfway
	runCtx := context.WithoutCancel(ctx.Request().Context())
	run, err := api.runner.Run(runCtx, ctx.Param("name"), day, data.Force)
	if err != nil {
		if run.Status == income.RunFailed {
			// the failure is recorded; report it with the run
			return ctx.JSON(http.StatusInternalServerError, run)
		}
		return err
	}
	return ctx.JSON(http.StatusOK, run)
}

func (rr *RunRequest) Validate(validate *validator.Validate) error {
	rr.Date = core.CleanString(rr.Date)
	return validate.Struct(rr)
}
