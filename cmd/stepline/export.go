package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/stepline/stepline/pkg/cmd"
	"github.com/stepline/stepline/pkg/log"
	"github.com/stepline/stepline/pkg/portable"
)

var ErrMissingWorkflowID = errors.New("workflow id argument is required")

func NewExportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Aliases:   []string{"e"},
		Usage:     "Export a definition as a portable document",
		ArgsUsage: "<workflow-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file (stdout if empty)",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			workflowID := command.Args().First()
			if workflowID == "" {
				return ErrMissingWorkflowID
			}

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

			def, err := persistence.DefinitionByID(ctx, workflowID)
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(portable.ToPortable(def), "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode document: %w", err)
			}

			output := command.String("output")
			if output == "" {
				_, _ = fmt.Fprintln(os.Stdout, string(data))

				return nil
			}

			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}

			_, _ = fmt.Fprintf(os.Stdout, "exported %s to %s\n", workflowID, output)

			return nil
		},
	}
}
