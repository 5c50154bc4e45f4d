package main

import (
	"context"
	"os"

	"github.com/flowpatch/flowpatch/pkg/cmd"
	"github.com/flowpatch/flowpatch/pkg/log"
	"github.com/flowpatch/flowpatch/pkg/platform"
	"github.com/flowpatch/flowpatch/pkg/retention"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "flowpatch-api",
		Usage:                 "Apply diff-based mutations to workflows with versioned rollback",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Version store URL (file path, postgres:// or redis://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "platform-url",
				Usage:    "Base URL of the workflow platform API",
				Required: true,
				Sources:  cli.EnvVars("PLATFORM_URL"),
			},
			&cli.StringFlag{
				Name:    "platform-api-key",
				Usage:   "API key for the workflow platform",
				Sources: cli.EnvVars("PLATFORM_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.IntFlag{
				Name:    "max-versions",
				Usage:   "Versions kept per workflow",
				Value:   0,
				Sources: cli.EnvVars("MAX_VERSIONS"),
			},
			&cli.StringFlag{
				Name:    "prune-schedule",
				Usage:   "Cron schedule for the retention sweeper",
				Value:   "@hourly",
				Sources: cli.EnvVars("PRUNE_SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:    "skip-validation",
				Usage:   "Disable structural validation before pushing (recovery only)",
				Sources: cli.EnvVars("SKIP_VALIDATION"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Flowpatch API")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			client := platform.NewHTTPClient(
				command.String("platform-url"),
				command.String("platform-api-key"),
				logger,
			)

			api, err := NewAPI(APIConfig{
				Logger:         logger,
				Persistence:    persistence,
				Platform:       client,
				EventBus:       eventBus,
				MaxVersions:    int(command.Int("max-versions")),
				SkipValidation: command.Bool("skip-validation"),
			})
			if err != nil {
				return err
			}

			sweeper := retention.NewSweeper(api.Versions(), logger, command.String("prune-schedule"))

			err = sweeper.Start(ctx)
			if err != nil {
				return err
			}

			defer sweeper.Stop()

			err = api.Start(int(command.Int("port")))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
