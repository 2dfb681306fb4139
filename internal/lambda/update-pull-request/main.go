package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/codecommit"
	"github.com/harborline/pr-validator/internal/di"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// CodeCommitAPI is the subset of the CodeCommit client used by the handler.
type CodeCommitAPI interface {
	PostCommentForPullRequest(ctx context.Context, params *codecommit.PostCommentForPullRequestInput, optFns ...func(*codecommit.Options)) (*codecommit.PostCommentForPullRequestOutput, error)
}

type Handler struct {
	client CodeCommitAPI
}

func NewHandler() (*Handler, error) {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Handler{
		client: codecommit.NewFromConfig(cfg),
	}, nil
}

// buildDetail is the CodeBuild state-change event payload the handler reads:
// the environment variable overrides carrying the PR coordinates, the phase
// results, and the deep link to the build logs.
type buildDetail struct {
	BuildStatus           string `json:"build-status"`
	AdditionalInformation struct {
		Environment struct {
			EnvironmentVariables []environmentVariable `json:"environment-variables"`
		} `json:"environment"`
		Phases []buildPhase `json:"phases"`
		Logs   struct {
			DeepLink string `json:"deep-link"`
		} `json:"logs"`
	} `json:"additional-information"`
}

type environmentVariable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type buildPhase struct {
	PhaseType   string `json:"phase-type"`
	PhaseStatus string `json:"phase-status"`
}

// pullRequestRef identifies the pull request a build belongs to, recovered
// from the environment variable overrides the trigger rule injected.
type pullRequestRef struct {
	PullRequestID     string
	RepositoryName    string
	SourceCommit      string
	DestinationCommit string
}

// HandleBuildStateChange posts the build outcome as a comment on the pull
// request that triggered the build.
func (h *Handler) HandleBuildStateChange(ctx context.Context, event events.CloudWatchEvent) (err error) {
	logger := zerolog.Ctx(ctx)

	defer func() {
		logger.Info().
			Interface("error", err).
			Str("event_id", event.ID).
			Msg("HandleBuildStateChange completed")
	}()

	var detail buildDetail
	if err := json.Unmarshal(event.Detail, &detail); err != nil {
		return fmt.Errorf("failed to parse build event detail: %w", err)
	}

	ref, err := pullRequestFromDetail(&detail)
	if err != nil {
		return err
	}

	content := buildComment(&detail, event.Region)

	logger.Info().
		Str("pull_request_id", ref.PullRequestID).
		Str("repository_name", ref.RepositoryName).
		Str("build_status", detail.BuildStatus).
		Msg("Posting build result to pull request")

	_, err = h.client.PostCommentForPullRequest(ctx, &codecommit.PostCommentForPullRequestInput{
		PullRequestId:  aws.String(ref.PullRequestID),
		RepositoryName: aws.String(ref.RepositoryName),
		BeforeCommitId: aws.String(ref.SourceCommit),
		AfterCommitId:  aws.String(ref.DestinationCommit),
		Content:        aws.String(content),
	})
	if err != nil {
		return fmt.Errorf("failed to post comment to pull request %s: %w", ref.PullRequestID, err)
	}
	return nil
}

func pullRequestFromDetail(detail *buildDetail) (*pullRequestRef, error) {
	ref := &pullRequestRef{}
	for _, item := range detail.AdditionalInformation.Environment.EnvironmentVariables {
		switch item.Name {
		case "pullRequestId":
			ref.PullRequestID = item.Value
		case "repositoryName":
			ref.RepositoryName = item.Value
		case "sourceCommit":
			ref.SourceCommit = item.Value
		case "destinationCommit":
			ref.DestinationCommit = item.Value
		}
	}

	if ref.PullRequestID == "" || ref.RepositoryName == "" {
		return nil, fmt.Errorf("build event is missing pull request coordinates")
	}
	return ref, nil
}

// buildComment renders the markdown comment: a passing or failing badge plus
// a link to the build logs. A build counts as failed when any phase failed.
func buildComment(detail *buildDetail, region string) string {
	s3Prefix := "s3"
	if region != "us-east-1" {
		s3Prefix = fmt.Sprintf("s3-%s", region)
	}

	label := "Passing"
	badge := "passing.svg"
	if buildFailed(detail) {
		label = "Failing"
		badge = "failing.svg"
	}

	badgeURL := fmt.Sprintf(
		"https://%s.amazonaws.com/codefactory-%s-prod-default-build-badges/%s",
		s3Prefix, region, badge)

	return fmt.Sprintf(`![%s](%s "%s") - See the [Logs](%s)`,
		label, badgeURL, label, detail.AdditionalInformation.Logs.DeepLink)
}

func buildFailed(detail *buildDetail) bool {
	for _, phase := range detail.AdditionalInformation.Phases {
		if phase.PhaseStatus == "FAILED" {
			return true
		}
	}
	return detail.BuildStatus == "FAILED" || detail.BuildStatus == "STOPPED"
}

func main() {
	logger := di.ProvideLogger().With().Str("lambda", "update-pull-request").Logger()

	handler, err := NewHandler()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create handler")
		os.Exit(1)
	}

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		// Lambda mode
		wrappedHandler := func(ctx context.Context, event events.CloudWatchEvent) error {
			ctx = logger.WithContext(ctx)
			return handler.HandleBuildStateChange(ctx, event)
		}
		lambda.Start(wrappedHandler)
		return
	}

	// CLI mode: replay a build event from a file
	app := &cli.App{
		Name:  "update-pull-request",
		Usage: "Post a CodeBuild result as a comment on the originating pull request",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "event",
				Usage:    "Path to a CodeBuild state-change event JSON file",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			body, err := os.ReadFile(c.String("event"))
			if err != nil {
				return fmt.Errorf("failed to read event file: %w", err)
			}

			var event events.CloudWatchEvent
			if err := json.Unmarshal(body, &event); err != nil {
				return fmt.Errorf("failed to parse event file: %w", err)
			}

			ctx := logger.WithContext(context.Background())
			return handler.HandleBuildStateChange(ctx, event)
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
