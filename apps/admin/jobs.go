package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/income"
)

// dailyJob names the daily sequence for runjob.
const dailyJob = "daily"

func (cli *commandLine) activate(uname, date string) error {
	ctx := context.Background()
	day := core.Today()
	if strings.TrimSpace(date) != "" {
		var err error
		if day, err = core.ParseDay(date); err != nil {
			return err
		}
	}
	m, err := cli.getMember(ctx, uname)
	if err != nil {
		return err
	}
	created, err := cli.memberSvc.ActivateDailyProfit(ctx, m.ID, day)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(cli.out, "%s activated for %s\n", m.Username, core.FormatDay(day))
	} else {
		fmt.Fprintf(cli.out, "%s was already activated for %s\n", m.Username, core.FormatDay(day))
	}
	return nil
}

func (cli *commandLine) runJob(job, date string, force bool) error {
	ctx := context.Background()
	day, err := core.ParseDay(date)
	if err != nil {
		return err
	}

	var runs []income.JobRun
	if job == dailyJob {
		runs, err = cli.runner.RunSequence(ctx, income.DailySequence, day)
	} else {
		if !cli.runner.Has(job) {
			return income.ErrUnknownJob
		}
		var run income.JobRun
		run, err = cli.runner.Run(ctx, job, day, force)
		if run.Job != "" {
			runs = append(runs, run)
		}
	}
	for _, run := range runs {
		fmt.Fprintf(cli.out, "%s %s: %s, %d processed, %s credited\n", run.Job, run.RunKey, run.Status, run.Processed, run.Credited)
	}
	return err
}
