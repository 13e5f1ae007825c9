package echoapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/income"
	"github.com/trezcool/payouts/core/ledger"
	"github.com/trezcool/payouts/core/member"
	"github.com/trezcool/payouts/services/scheduler"
)

type (
	JobRunner interface {
		Jobs() []string
		Run(ctx context.Context, job string, day time.Time, force bool) (income.JobRun, error)
		Runs(ctx context.Context, filter income.RunFilter) ([]income.JobRun, error)
	}

	Schedule interface {
		Next() []scheduler.NextRun
	}

	MemberService interface {
		Query(ctx context.Context, filter *member.QueryFilter, ordering []core.DBOrdering) ([]member.Member, error)
		RecordLogin(ctx context.Context, id string) error
		ActivateDailyProfit(ctx context.Context, id string, day time.Time) (bool, error)
	}

	LedgerService interface {
		Entries(ctx context.Context, filter ledger.EntryFilter) ([]ledger.Entry, error)
	}

	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Runner     JobRunner
		Schedule   Schedule // optional
		MemberSvc  MemberService
		LedgerSvc  LedgerService
		Validate   *validator.Validate
		Translator ut.Translator
	}

	// Server is the ops API: job triggers and the member events the income jobs depend on.
	Server struct {
		app      *echo.Echo
		addr     string
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		app:      echo.New(),
		addr:     deps.Conf.Server.OpsAddr,
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)

	conf := deps.Conf
	app := s.app
	app.HideBanner = true
	app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	app.HTTPErrorHandler = newAppHTTPErrorHandler(deps.Logger, deps.Translator, s.signalShutdown)
	app.Debug = conf.Debug

	app.GET("/", home(conf))

	v1 := app.Group("/v1")
	v1.GET("/health", health(conf))

	auth := opsAuth(conf.Server.OpsToken)
	registerJobAPI(v1, auth, deps.Runner, deps.Schedule, deps.Validate)
	registerMemberAPI(v1, auth, deps.MemberSvc, deps.LedgerSvc, deps.Validate)

	return s
}

// Start blocks serving requests; a failure is reported on Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.addr); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	signal.Stop(s.shutdown)
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

// opsAuth accepts `Authorization: Bearer <ops token>`. Everything is refused when no token is configured.
func opsAuth(token string) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		Validator: func(key string, _ echo.Context) (bool, error) {
			if token == "" {
				return false, nil
			}
			return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1, nil
		},
	})
}

func home(conf *core.Config) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		return ctx.String(http.StatusOK, "Welcome to "+conf.AppName+" ops API!")
	}
}

func health(conf *core.Config) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		return ctx.JSON(http.StatusOK, echo.Map{
			"status": "ok",
			"build":  conf.Build,
			"env":    conf.Env,
		})
	}
}
