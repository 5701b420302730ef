package cli

// This file contains the run command executing a suite file.

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/perfgo/webgrid/browser"
	"github.com/perfgo/webgrid/config"
	"github.com/perfgo/webgrid/lifecycle"
	"github.com/perfgo/webgrid/report"
	"github.com/perfgo/webgrid/suite"
	"github.com/urfave/cli/v2"
)

func (a *App) run(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("expected exactly one suite file, got %d arguments", ctx.NArg())
	}
	suitePath := ctx.Args().First()

	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}
	applyRunFlags(ctx, cfg)

	sf, err := LoadSuiteFile(suitePath)
	if err != nil {
		return err
	}
	if sf.Name != "" {
		cfg.Set(config.KeySuiteName, sf.Name)
	}
	if sf.Environment != "" && !ctx.IsSet("env") {
		cfg.Set(config.KeyEnvName, sf.Environment)
	}

	tests, err := sf.Tests(ctx.StringSlice("only"))
	if err != nil {
		return err
	}

	opts := suite.OptionsFromConfig(cfg)
	opts.Args = os.Args
	opts.Lifecycle.RerunArgs = rerunArgs(ctx.String("config"), suitePath)

	driver := browser.NewDriver(a.logger, browser.Options{
		Headless: cfg.Bool(config.KeyHeadless),
		ExecPath: cfg.String(config.KeyExecPath),
	})

	controller := suite.New(a.logger, driver, opts)
	if err := controller.Start(); err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.logger.Info().Str("suite", suitePath).Int("tests", len(tests)).Msg("Running suite")
	if _, err := controller.Run(runCtx, tests); err != nil {
		a.logger.Warn().Err(err).Msg("Suite run did not complete")
	}

	res, err := controller.Finish()
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	fmt.Println(report.TableSummary(res.Report))
	fmt.Printf("Report: %s\n", filepath.Join(opts.ReportsDir, report.HTMLFile))
	if res.Archive != "" {
		fmt.Printf("Archive: %s\n", res.Archive)
	}

	if !res.Passed() {
		return cli.Exit(fmt.Sprintf("%d of %d executions failed", res.Report.Totals.Failed, res.Report.Totals.Executions), 1)
	}
	return nil
}

// applyRunFlags copies explicitly set flags over the loaded configuration.
func applyRunFlags(ctx *cli.Context, cfg *config.Config) {
	if ctx.IsSet("workers") {
		cfg.Set(config.KeyWorkers, strconv.Itoa(ctx.Int("workers")))
	}
	if ctx.IsSet("retries") {
		cfg.Set(config.KeyMaxAttempts, strconv.Itoa(ctx.Int("retries")))
	}
	if ctx.IsSet("env") {
		cfg.Set(config.KeyEnvName, ctx.String("env"))
	}
	if ctx.IsSet("capture-on-success") {
		cfg.Set(config.KeyCaptureSuccess, strconv.FormatBool(ctx.Bool("capture-on-success")))
	}
	if ctx.Bool("headed") {
		cfg.Set(config.KeyHeadless, "false")
	}
}

// rerunArgs returns the command line reproducing a single test.
func rerunArgs(configPath, suitePath string) func(lifecycle.Test) []string {
	return func(t lifecycle.Test) []string {
		args := []string{AppName}
		if configPath != "" {
			args = append(args, "--config", configPath)
		}
		return append(args, "run", "--only", t.Name, suitePath)
	}
}
