package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/perfgo/webgrid/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const AppName = "webgrid"

type App struct {
	logger zerolog.Logger
	cli    *cli.App
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		})

	app := &App{
		logger: logger,
		cli: &cli.App{
			Name:  AppName,
			Usage: "Run browser test suites in parallel and archive their reports",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
				&cli.StringFlag{
					Name:    "config",
					Aliases: []string{"c"},
					Usage:   "YAML configuration file",
					EnvVars: []string{config.EnvPrefix + "CONFIG"},
				},
			},
			Before: func(ctx *cli.Context) error {
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
		},
	}
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "run",
		Usage:     "Run a suite file",
		ArgsUsage: "<suite.yaml>",
		Action:    app.run,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Number of parallel workers (overrides " + config.KeyWorkers + ")",
			},
			&cli.IntFlag{
				Name:  "retries",
				Usage: "Retries of a failed test (overrides " + config.KeyMaxAttempts + ")",
			},
			&cli.StringFlag{
				Name:    "env",
				Aliases: []string{"e"},
				Usage:   "Environment name recorded in the report (overrides " + config.KeyEnvName + ")",
			},
			&cli.BoolFlag{
				Name:  "capture-on-success",
				Usage: "Also capture a screenshot of passing tests",
			},
			&cli.BoolFlag{
				Name:  "headed",
				Usage: "Show the browser windows",
			},
			&cli.StringSliceFlag{
				Name:  "only",
				Usage: "Run only the named tests (repeatable)",
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "list",
		Usage:  "List previous suite runs",
		Action: app.list,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "suite",
				Aliases: []string{"s"},
				Usage:   "Filter by suite name",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of results (default: 20)",
				Value:   20,
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:            "view",
		Usage:           "View a suite run from history",
		ArgsUsage:       "[ID|INDEX]",
		Action:          app.view,
		SkipFlagParsing: true,
		Description: `View a suite run from history.

Arguments:
  0           View last suite run (default)
  -1          View 2nd last suite run
  -2          View 3rd last suite run
  <hex-id>    View suite run matching the ID prefix

Examples:
  webgrid view           # View last suite run
  webgrid view -1        # View 2nd last suite run
  webgrid view 3f2a      # View suite run with ID starting with 3f2a`,
	})

	return app
}

func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = version
	if commit != "none" && commit != "" {
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit[:min(len(commit), 8)], date)
	}
}

// loadConfig layers the --config file and the environment over the defaults.
func (a *App) loadConfig(ctx *cli.Context) (*config.Config, error) {
	path := ctx.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if path != "" {
		a.logger.Debug().Str("path", path).Msg("Loaded configuration")
	}
	return cfg, nil
}
