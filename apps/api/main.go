package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"go.uber.org/dig"

	"github.com/trezcool/payouts/apps/api/di"
	echoapi "github.com/trezcool/payouts/apps/api/echo"
	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/member"
	"github.com/trezcool/payouts/services/scheduler"
	"github.com/trezcool/payouts/storage/database"
)

type app struct {
	dig.In

	Conf       *core.Config
	Logger     core.Logger
	DBLogger   core.Logger `name:"dbLogger"`
	DB         *database.DB
	Validate   *validator.Validate
	Translator ut.Translator
	Scheduler  *scheduler.Scheduler
	Server     *echoapi.Server
}

func main() {
	c := di.New()
	if err := c.Invoke(run); err != nil {
		log.Fatal(err)
	}
}

func run(a app) {
	conf, logger := a.Conf, a.Logger

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	member.InitValidators(a.Validate, a.Translator)

	core.ParseEmailTemplates(conf, logger)

	defer func() {
		if err := a.DB.Close(); err != nil {
			a.DBLogger.Fatal("Failed to close", err)
		}
	}()

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Scheduler & Ops API

	a.Scheduler.Start()
	for _, next := range a.Scheduler.Next() {
		logger.Info(fmt.Sprintf("scheduled %v (%s), next at %s", next.Jobs, next.Spec, next.Next))
	}

	go func() {
		a.Server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-a.Server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-a.Server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests and running jobs a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err := a.Scheduler.Stop(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop scheduler gracefully: %v", err), err)
		}

		// asking listener to shut down and shed load
		if err := a.Server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = a.Server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
