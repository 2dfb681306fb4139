package commands

import (
	"fmt"

	"github.com/harborline/pr-validator/buildspec"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// LintCommand returns the lint command: parse a local buildspec file and
// report structural problems before wiring it into a validator.
func LintCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "lint",
		Usage: "Check a buildspec file for structural problems",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "Path to the buildspec file",
				Value:   "buildspec.yaml",
			},
		},
		Action: func(c *cli.Context) error {
			path := c.String("file")

			spec, err := buildspec.ParseFile(path)
			if err != nil {
				return err
			}

			problems := spec.Lint()
			for _, problem := range problems {
				logger.Warn().
					Str("file", path).
					Str("path", problem.Path).
					Msg(problem.Message)
			}

			if len(problems) > 0 {
				return cli.Exit(fmt.Sprintf("%d problem(s) found in %s", len(problems), path), 1)
			}

			logger.Info().Str("file", path).Msg("Buildspec looks good")
			return nil
		},
	}
}
