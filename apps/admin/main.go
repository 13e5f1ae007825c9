package main

import (
	"fmt"
	"log"
	"os"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/income"
	"github.com/trezcool/payouts/core/investment"
	"github.com/trezcool/payouts/core/ledger"
	"github.com/trezcool/payouts/core/member"
	emailsvc "github.com/trezcool/payouts/services/email"
	logsvc "github.com/trezcool/payouts/services/logger"
	"github.com/trezcool/payouts/storage/database"
	sqlxrepos "github.com/trezcool/payouts/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	// set up services
	memberRepo := sqlxrepos.NewMemberRepository(db.DB)
	settings, err := ledger.NewSettings(conf.Income)
	if err != nil {
		logger.Fatal(fmt.Sprintf("reading ledger settings: %v", err), err)
	}
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	core.ParseEmailTemplates(conf, logger)

	memberSvc := member.NewService(db, memberRepo, member.DefaultMatrixWidth)
	ledgerSvc := ledger.NewService(db, sqlxrepos.NewLedgerRepository(db.DB), memberRepo, settings)
	investSvc := investment.NewService(db, sqlxrepos.NewInvestmentRepository(db.DB), memberRepo, ledgerSvc)
	engine := income.NewEngine(income.Deps{
		DB:          db,
		Members:     memberRepo,
		Investments: sqlxrepos.NewInvestmentRepository(db.DB),
		Rewards:     sqlxrepos.NewRewardRepository(db.DB),
		Ledger:      ledgerSvc,
		Mailer:      mailSvc,
		Logger:      logger,
	}, income.ConfiguredRules(conf.Income), conf.Income.Workers)
	runner := income.NewRunner(engine.Jobs(), sqlxrepos.NewRunRepository(db.DB), database.NewAdvisoryLocker(db), logger)

	validate, translator := core.NewValidator()
	member.InitValidators(validate, translator)

	// start CLI
	cli := commandLine{
		db:         db.DB.DB,
		out:        os.Stdout,
		validate:   validate,
		translator: translator,
		memberSvc:  memberSvc,
		ledgerSvc:  ledgerSvc,
		investSvc:  investSvc,
		runner:     runner,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", cli.describe(err))
		}
		os.Exit(1)
	}
}
