package commands

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"
	"github.com/harborline/pr-validator/internal/di"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// buildSummary is the per-build view printed by the builds command.
type buildSummary struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"`
	SourceVersion string     `json:"source_version,omitempty"`
	PullRequestID string     `json:"pull_request_id,omitempty"`
	StartTime     *time.Time `json:"start_time,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`
}

// BuildsCommand returns the builds command: list recent validation builds
// for a deployed validator project.
func BuildsCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "builds",
		Usage: "List recent validation builds for a validator project",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "project",
				Usage:    "CodeBuild project name (see the ProjectName stack output)",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of builds to show",
				Value: 10,
			},
		},
		Action: func(c *cli.Context) error {
			container, err := di.New(c.Context)
			if err != nil {
				return err
			}

			return container.Invoke(func(client *codebuild.Client) error {
				summaries, err := listBuilds(c.Context, client, c.String("project"), c.Int("limit"))
				if err != nil {
					return err
				}

				if len(summaries) == 0 {
					logger.Info().Str("project", c.String("project")).Msg("No builds found")
					return nil
				}

				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(summaries)
			})
		},
	}
}

func listBuilds(ctx context.Context, client *codebuild.Client, project string, limit int) ([]buildSummary, error) {
	listed, err := client.ListBuildsForProject(ctx, &codebuild.ListBuildsForProjectInput{
		ProjectName: aws.String(project),
	})
	if err != nil {
		return nil, err
	}

	ids := listed.Ids
	if len(ids) > limit {
		ids = ids[:limit]
	}
	if len(ids) == 0 {
		return nil, nil
	}

	detail, err := client.BatchGetBuilds(ctx, &codebuild.BatchGetBuildsInput{Ids: ids})
	if err != nil {
		return nil, err
	}

	summaries := make([]buildSummary, 0, len(detail.Builds))
	for _, build := range detail.Builds {
		summary := buildSummary{
			ID:            aws.ToString(build.Id),
			Status:        string(build.BuildStatus),
			SourceVersion: aws.ToString(build.SourceVersion),
			StartTime:     build.StartTime,
			EndTime:       build.EndTime,
		}

		if build.Environment != nil {
			for _, env := range build.Environment.EnvironmentVariables {
				if aws.ToString(env.Name) == "pullRequestId" {
					summary.PullRequestID = aws.ToString(env.Value)
				}
			}
		}

		summaries = append(summaries, summary)
	}
	return summaries, nil
}
