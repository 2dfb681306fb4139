package commands

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/harborline/pr-validator/internal/deploy"
	"github.com/harborline/pr-validator/internal/di"
	"github.com/harborline/pr-validator/internal/services"
	"github.com/harborline/pr-validator/internal/utils"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// DeployCommand returns the deploy command: synthesize the validator stack,
// stage the comment function artifact, and create or update the stack.
func DeployCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "deploy",
		Usage: "Deploy the validator stack for a repository",
		Description: `Synthesizes the validator template, uploads the update-pull-request
function artifact to S3, and creates or updates the CloudFormation stack.

The artifact bucket resolves in order: --artifact-bucket, the
/{env}/pr-validator/artifact-bucket parameter, then a per-account default.

Examples:
  # Deploy with an explicit artifact
  pr-validator deploy --repo my-repo --buildspec buildspec.yaml \
    --artifact dist/bootstrap.zip

  # Deploy into a named stack without waiting for completion
  pr-validator deploy --repo my-repo --buildspec deploy/buildspec.yaml \
    --artifact dist/bootstrap.zip --stack-name validate-my-repo --no-wait`,
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
				Name:     "artifact",
				Usage:    "Path to the packaged update-pull-request function (bootstrap.zip)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "artifact-bucket",
				Usage: "S3 bucket for the function artifact",
			},
			&cli.StringFlag{
				Name:  "artifact-key",
				Usage: "S3 key for the function artifact (defaults to a fresh key per deploy)",
			},
			&cli.StringSliceFlag{
				Name:    "parameter",
				Aliases: []string{"p"},
				Usage:   "Additional stack parameter as Key=Value (can be specified multiple times)",
			},
			&cli.StringFlag{
				Name:    "env",
				Aliases: []string{"e"},
				Usage:   "Deployment environment used to locate configuration parameters",
				EnvVars: []string{"ENV"},
				Value:   "dev",
			},
			&cli.BoolFlag{
				Name:  "no-wait",
				Usage: "Return as soon as the stack operation is started",
			},
		},
		Action: func(c *cli.Context) error {
			template, validator, err := synthesize(c)
			if err != nil {
				return err
			}

			body, err := template.JSON()
			if err != nil {
				return err
			}

			stackName := c.String("stack-name")
			if stackName == "" {
				stackName = fmt.Sprintf("pr-validator-%s", c.String("repo"))
			}

			container, err := di.New(c.Context, di.WithEnv(c.String("env")))
			if err != nil {
				return err
			}

			return container.Invoke(func(deployer *deploy.Deployer, store services.ParameterStore, awsConfig aws.Config) error {
				ctx := c.Context

				config, err := store.GetConfig(ctx)
				if err != nil {
					return err
				}

				bucket := c.String("artifact-bucket")
				if bucket == "" {
					bucket = config.ArtifactBucket
				}
				if bucket == "" {
					bucket, err = deployer.DefaultArtifactBucket(ctx, awsConfig.Region)
					if err != nil {
						return err
					}
				}

				key := c.String("artifact-key")
				if key == "" {
					key = deploy.NewArtifactKey()
				}

				if err := deployer.UploadArtifact(ctx, bucket, key, c.String("artifact")); err != nil {
					return err
				}

				extra, err := utils.ParseKeyValues(c.StringSlice("parameter"))
				if err != nil {
					return err
				}
				parameters := utils.MergeParameters(map[string]string{
					validator.CodeBucketParameter: bucket,
					validator.CodeKeyParameter:    key,
				}, extra)

				result, err := deployer.Deploy(ctx, stackName, string(body), parameters, !c.Bool("no-wait"))
				if err != nil {
					return err
				}

				logger.Info().
					Str("stack_name", result.StackName).
					Str("stack_id", result.StackID).
					Str("operation", result.Operation).
					Msg("Validator stack deployed")
				return nil
			})
		},
	}
}
