package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"

	"github.com/stepline/stepline/pkg/cmd"
	"github.com/stepline/stepline/pkg/execution"
	"github.com/stepline/stepline/pkg/log"
	"github.com/stepline/stepline/pkg/resources"
)

const defaultMaxAge = 24 * time.Hour

func main() {
	logger := log.WithModule("watchdog")

	command := &cli.Command{
		Name:                  "stepline-watchdog",
		Usage:                 "Time out executions that have been running too long",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "inventory-url",
				Usage:   "Redis URL for the shared resource inventory (in-memory if empty)",
				Value:   "",
				Sources: cli.EnvVars("INVENTORY_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "Cron schedule for the sweep",
				Value:   "@every 1m",
				Sources: cli.EnvVars("WATCHDOG_SCHEDULE"),
			},
			&cli.DurationFlag{
				Name:    "max-age",
				Usage:   "Age after which a non-terminal execution is timed out",
				Value:   defaultMaxAge,
				Sources: cli.EnvVars("WATCHDOG_MAX_AGE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Stepline watchdog")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			inventory, err := cmd.NewInventory(ctx, logger, command.String("inventory-url"))
			if err != nil {
				return err
			}

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			coordinator := resources.NewCoordinator(inventory, logger)
			controller := execution.NewController(logger, persistence, coordinator, eventBus)
			watchdog := NewWatchdog(logger, persistence, controller, command.Duration("max-age"))

			scheduler := cron.New()

			_, err = scheduler.AddFunc(command.String("schedule"), func() {
				cancelled, err := watchdog.Sweep(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Sweep failed", "error", err)

					return
				}

				if cancelled > 0 {
					logger.InfoContext(ctx, "Sweep finished", "cancelled", cancelled)
				}
			})
			if err != nil {
				return err
			}

			scheduler.Start()
			defer scheduler.Stop()

			logger.InfoContext(ctx, "Watchdog running",
				"schedule", command.String("schedule"), "max_age", command.Duration("max-age"))

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			logger.InfoContext(ctx, "Shutting down watchdog")

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
