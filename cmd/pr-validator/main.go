package main

import (
	"context"
	"os"

	"github.com/harborline/pr-validator/cmd/pr-validator/commands"
	"github.com/harborline/pr-validator/internal/di"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := di.ProvideLogger()
	ctx := logger.WithContext(context.Background())

	app := &cli.App{
		Name:  "pr-validator",
		Usage: "Validate CodeCommit pull requests with CodeBuild",
		Description: `Declares and deploys the infrastructure that validates pull requests:
a CodeBuild project running your buildspec, an EventBridge rule that starts
it on pull request changes, and a Lambda function that comments the result
back on the pull request.

This tool provides commands for:
  - Synthesizing the CloudFormation template for a repository
  - Deploying the synthesized stack
  - Linting a buildspec file before wiring it up
  - Inspecting recent validation builds`,
		Commands: []*cli.Command{
			commands.SynthCommand(&logger),
			commands.DeployCommand(&logger),
			commands.LintCommand(&logger),
			commands.BuildsCommand(&logger),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
