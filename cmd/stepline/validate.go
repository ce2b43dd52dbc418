package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/stepline/stepline/pkg/cmd"
	"github.com/stepline/stepline/pkg/log"
	"github.com/stepline/stepline/pkg/services"
)

var ErrInvalidDefinitions = errors.New("invalid definitions found")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Run the graph validator over every stored definition",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("cli")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			definitionService := services.NewDefinition(persistence)

			defs, err := definitionService.List(ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch definitions: %w", err)
			}

			invalid := 0

			for _, def := range defs {
				issues := definitionService.Validate(def)
				if len(issues) == 0 {
					_, _ = fmt.Fprintf(os.Stdout, "ok    %s  %s\n", def.ID, def.Name)

					continue
				}

				invalid++

				_, _ = fmt.Fprintf(os.Stdout, "FAIL  %s  %s\n", def.ID, def.Name)

				for _, issue := range issues {
					_, _ = fmt.Fprintf(os.Stdout, "      - %s\n", issue.String())
				}
			}

			_, _ = fmt.Fprintf(os.Stdout, "\n%d definition(s) checked, %d invalid\n", len(defs), invalid)

			if invalid > 0 {
				return ErrInvalidDefinitions
			}

			return nil
		},
	}
}
