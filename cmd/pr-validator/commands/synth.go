package commands

import (
	"fmt"
	"os"

	"github.com/harborline/pr-validator/cfn"
	"github.com/harborline/pr-validator/construct"
	"github.com/harborline/pr-validator/prvalidator"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// SynthCommand returns the synth command: build the validator stack for a
// repository and render its CloudFormation template.
func SynthCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "synth",
		Usage: "Synthesize the validator CloudFormation template for a repository",
		Description: `Declares the pull request validator for the given repository and renders
the resulting CloudFormation template.

The buildspec path is passed through to CodeBuild verbatim; it is resolved
inside the repository at build time, not on this machine.

Examples:
  # Print the template as JSON
  pr-validator synth --repo my-repo --buildspec buildspec.yaml

  # Write the template as YAML
  pr-validator synth --repo my-repo --buildspec deploy/buildspec.yaml \
    --format yaml --output template.yaml`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "repo",
				Aliases:  []string{"r"},
				Usage:    "CodeCommit repository name",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "buildspec",
				Aliases:  []string{"b"},
				Usage:    "Path of the buildspec file within the repository",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "stack-name",
				Usage: "CloudFormation stack name (defaults to pr-validator-{repo})",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format: json or yaml",
				Value: "json",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the template to a file instead of stdout",
			},
		},
		Action: func(c *cli.Context) error {
			template, _, err := synthesize(c)
			if err != nil {
				return err
			}

			// The construct defers buildspec existence checks to build time,
			// but a local miss is usually a typo worth flagging.
			if _, err := os.Stat(c.String("buildspec")); err != nil {
				logger.Warn().
					Str("buildspec", c.String("buildspec")).
					Msg("Buildspec not found locally; CodeBuild resolves it inside the repository")
			}

			body, err := render(template, c.String("format"))
			if err != nil {
				return err
			}

			if output := c.String("output"); output != "" {
				if err := os.WriteFile(output, body, 0o644); err != nil {
					return fmt.Errorf("failed to write template: %w", err)
				}
				logger.Info().Str("output", output).Msg("Template written")
				return nil
			}

			_, err = os.Stdout.Write(append(body, '\n'))
			return err
		},
	}
}

// synthesize declares the validator stack from CLI flags and returns the
// synthesized template alongside the validator, whose parameter names the
// deploy command needs.
func synthesize(c *cli.Context) (*cfn.Template, *prvalidator.PullRequestValidator, error) {
	repo := c.String("repo")

	stackName := c.String("stack-name")
	if stackName == "" {
		stackName = fmt.Sprintf("pr-validator-%s", repo)
	}

	stack, err := construct.NewStack(stackName,
		fmt.Sprintf("Pull request validation for the %s repository", repo))
	if err != nil {
		return nil, nil, err
	}

	validator, err := prvalidator.New(stack, "PullRequestValidator", prvalidator.Config{
		RepositoryName: repo,
		BuildspecFile:  c.String("buildspec"),
	})
	if err != nil {
		return nil, nil, err
	}

	if err := stack.AddOutput("ProjectName", cfn.Output{
		Description: "Name of the validation CodeBuild project",
		Value:       validator.Project.Ref(),
	}); err != nil {
		return nil, nil, err
	}

	return stack.Synth(), validator, nil
}

func render(template *cfn.Template, format string) ([]byte, error) {
	switch format {
	case "json":
		return template.JSON()
	case "yaml":
		return template.YAML()
	default:
		return nil, fmt.Errorf("unknown format %q, expected json or yaml", format)
	}
}
