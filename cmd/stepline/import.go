package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/stepline/stepline/pkg/cmd"
	"github.com/stepline/stepline/pkg/log"
	"github.com/stepline/stepline/pkg/portable"
)

var ErrMissingImportFile = errors.New("portable document file argument is required")

func NewImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Aliases:   []string{"i"},
		Usage:     "Import a portable document as a new definition",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "owner",
				Usage:    "Owner of the imported definition",
				Required: true,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			path := command.Args().First()
			if path == "" {
				return ErrMissingImportFile
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}

			def, err := portable.FromPortable(data)
			if err != nil {
				var docErr *portable.DocumentError
				if errors.As(err, &docErr) {
					printDocumentError(docErr)
				}

				return err
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

			now := time.Now().UTC()
			def.Owner = command.String("owner")
			def.CreatedAt = now
			def.UpdatedAt = now

			if err := persistence.SaveDefinition(ctx, def); err != nil {
				return fmt.Errorf("failed to store definition: %w", err)
			}

			_, _ = fmt.Fprintf(os.Stdout, "imported %s as %s\n", path, def.ID)

			return nil
		},
	}
}

func printDocumentError(docErr *portable.DocumentError) {
	for _, p := range docErr.ShapeProblems {
		_, _ = fmt.Fprintf(os.Stderr, "shape: %s\n", p)
	}

	for _, p := range docErr.IntegrityProblems {
		_, _ = fmt.Fprintf(os.Stderr, "references: %s\n", p)
	}

	for _, issue := range docErr.Issues {
		_, _ = fmt.Fprintf(os.Stderr, "graph: %s\n", issue.String())
	}
}
