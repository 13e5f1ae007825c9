package di

import (
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/payouts/apps/api/echo"
	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/income"
	"github.com/trezcool/payouts/core/investment"
	"github.com/trezcool/payouts/core/ledger"
	"github.com/trezcool/payouts/core/member"
	emailsvc "github.com/trezcool/payouts/services/email"
	logsvc "github.com/trezcool/payouts/services/logger"
	"github.com/trezcool/payouts/services/scheduler"
	"github.com/trezcool/payouts/storage/database"
	sqlxrepos "github.com/trezcool/payouts/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type serverParams struct {
	dig.In
	Conf       *core.Config
	Logger     core.Logger
	Runner     *income.Runner
	Scheduler  *scheduler.Scheduler
	MemberSvc  *member.Service
	LedgerSvc  *ledger.Service
	Validate   *validator.Validate
	Translator ut.Translator
}

type engineParams struct {
	dig.In
	Conf        *core.Config
	Logger      core.Logger
	DB          core.Transactor
	Members     member.Repository
	Investments investment.Repository
	Rewards     income.RewardRepository
	LedgerSvc   *ledger.Service
	Mailer      core.EmailService
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *database.DB {
	setUp := func() (*database.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB.DB, "up"); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newSqlxDB(db *database.DB) *sqlx.DB {
	return db.DB
}

func newTransactor(db *database.DB) core.Transactor {
	return db
}

func newLocker(db *database.DB) income.Locker {
	return database.NewAdvisoryLocker(db)
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newMemberService(db core.Transactor, repo member.Repository) *member.Service {
	return member.NewService(db, repo, member.DefaultMatrixWidth)
}

func newLedgerService(conf *core.Config, db core.Transactor, repo ledger.Repository, members member.Repository) (*ledger.Service, error) {
	settings, err := ledger.NewSettings(conf.Income)
	if err != nil {
		return nil, err
	}
	return ledger.NewService(db, repo, members, settings), nil
}

func newInvestmentService(db core.Transactor, repo investment.Repository, members member.Repository, lgr *ledger.Service) *investment.Service {
	return investment.NewService(db, repo, members, lgr)
}

func newEngine(p engineParams) *income.Engine {
	return income.NewEngine(income.Deps{
		DB:          p.DB,
		Members:     p.Members,
		Investments: p.Investments,
		Rewards:     p.Rewards,
		Ledger:      p.LedgerSvc,
		Mailer:      p.Mailer,
		Logger:      p.Logger,
	}, income.ConfiguredRules(p.Conf.Income), p.Conf.Income.Workers)
}

func newRunner(engine *income.Engine, runs income.RunRepository, locker income.Locker, logger core.Logger) *income.Runner {
	return income.NewRunner(engine.Jobs(), runs, locker, logger)
}

func newScheduler(conf *core.Config, runner *income.Runner, logger core.Logger) (*scheduler.Scheduler, error) {
	s := scheduler.New(runner, logger)
	for _, e := range scheduler.DefaultEntries(conf.Income) {
		if err := s.Add(e); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		Runner:     p.Runner,
		Schedule:   p.Scheduler,
		MemberSvc:  p.MemberSvc,
		LedgerSvc:  p.LedgerSvc,
		Validate:   p.Validate,
		Translator: p.Translator,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newSqlxDB))
	must(c.Provide(newTransactor))
	must(c.Provide(newLocker))
	must(c.Provide(newEmailService))
	must(c.Provide(core.NewValidator))

	must(c.Provide(sqlxrepos.NewMemberRepository, dig.As(new(member.Repository))))
	must(c.Provide(sqlxrepos.NewInvestmentRepository, dig.As(new(investment.Repository))))
	must(c.Provide(sqlxrepos.NewLedgerRepository, dig.As(new(ledger.Repository))))
	must(c.Provide(sqlxrepos.NewRewardRepository, dig.As(new(income.RewardRepository))))
	must(c.Provide(sqlxrepos.NewRunRepository, dig.As(new(income.RunRepository))))

	must(c.Provide(newMemberService))
	must(c.Provide(newLedgerService))
	must(c.Provide(newInvestmentService))
	must(c.Provide(newEngine))
	must(c.Provide(newRunner))
	must(c.Provide(newScheduler))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
