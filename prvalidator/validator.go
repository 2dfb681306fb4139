// Package prvalidator declares the resources needed to validate CodeCommit
// pull requests with CodeBuild and report the outcome back as a comment on
// the pull request.
//
// The construct wires three things together: a CodeBuild project that runs a
// caller-supplied buildspec, an EventBridge rule that starts the project when
// a pull request is created or its source branch is updated, and a Lambda
// function that posts the build result to the pull request when the build
// finishes. Construction only registers declarations with the enclosing
// stack; nothing runs until the synthesized template is deployed.
package prvalidator

import (
	"fmt"

	"github.com/harborline/pr-validator/cfn"
	"github.com/harborline/pr-validator/construct"
	xerrors "github.com/harborline/pr-validator/internal/errors"
)

const (
	defaultComputeType = "BUILD_GENERAL1_SMALL"
	defaultBuildImage  = "aws/codebuild/standard:7.0"

	// Forwarded from the pull request event into the build environment and
	// read back out of the build state-change event by the comment function.
	envPullRequestID     = "pullRequestId"
	envRepositoryName    = "repositoryName"
	envSourceCommit      = "sourceCommit"
	envDestinationCommit = "destinationCommit"
)

// Config describes one pull request validator.
type Config struct {
	// RepositoryName names an existing CodeCommit repository. Existence is
	// checked at deploy time, not here.
	RepositoryName string

	// BuildspecFile is the path, within the repository, of the buildspec the
	// project runs. The file is referenced opaquely; its contents are never
	// read during synthesis.
	BuildspecFile string

	// ComputeType overrides the CodeBuild compute type.
	// Defaults to BUILD_GENERAL1_SMALL.
	ComputeType string

	// BuildImage overrides the CodeBuild container image.
	// Defaults to aws/codebuild/standard:7.0.
	BuildImage string
}

// PullRequestValidator is the declared validator. The exported fields expose
// the underlying resources so callers can reference them from sibling
// constructs or stack outputs.
type PullRequestValidator struct {
	base *construct.Construct

	Project         *construct.Resource
	PullRequestRule *construct.Resource
	Function        *construct.Resource
	BuildResultRule *construct.Resource

	// CodeBucketParameter and CodeKeyParameter name the stack parameters that
	// locate the comment function's code artifact at deploy time.
	CodeBucketParameter string
	CodeKeyParameter    string
}

// Node returns the construct's tree node.
func (v *PullRequestValidator) Node() *construct.Node { return v.base.Node() }

// New declares a pull request validator for cfg.RepositoryName under the
// given scope. Construction fails, with nothing declared, when the
// repository name or buildspec file is empty, or when id collides with an
// existing construct in the scope.
func New(scope construct.Scope, id string, cfg Config) (*PullRequestValidator, error) {
	if cfg.RepositoryName == "" {
		return nil, xerrors.ErrRepositoryNameRequired
	}
	if cfg.BuildspecFile == "" {
		return nil, xerrors.ErrBuildspecFileRequired
	}
	if cfg.ComputeType == "" {
		cfg.ComputeType = defaultComputeType
	}
	if cfg.BuildImage == "" {
		cfg.BuildImage = defaultBuildImage
	}

	base, err := construct.New(scope, id)
	if err != nil {
		return nil, err
	}

	stack, err := construct.StackOf(base)
	if err != nil {
		return nil, err
	}

	v := &PullRequestValidator{base: base}
	if err := v.declare(stack, cfg); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *PullRequestValidator) declare(stack *construct.Stack, cfg Config) error {
	repoArn := cfn.Sub(fmt.Sprintf(
		"arn:${AWS::Partition}:codecommit:${AWS::Region}:${AWS::AccountId}:%s", cfg.RepositoryName))
	cloneURL := cfn.Sub(fmt.Sprintf(
		"https://git-codecommit.${AWS::Region}.${AWS::URLSuffix}/v1/repos/%s", cfg.RepositoryName))

	projectRole, err := construct.NewResource(v, "CodebuildRole", "AWS::IAM::Role", map[string]any{
		"AssumeRolePolicyDocument": assumeRolePolicy("codebuild.amazonaws.com"),
		"Policies": []any{
			inlinePolicy("logs", []any{
				statement("Allow",
					[]any{"logs:CreateLogGroup", "logs:CreateLogStream", "logs:PutLogEvents"},
					"*"),
			}),
			inlinePolicy("source", []any{
				statement("Allow", []any{"codecommit:GitPull"}, repoArn),
			}),
		},
	})
	if err != nil {
		return err
	}

	v.Project, err = construct.NewResource(v, "CodebuildProject", "AWS::CodeBuild::Project", map[string]any{
		"ServiceRole": projectRole.GetAtt("Arn"),
		"Source": map[string]any{
			"Type":      "CODECOMMIT",
			"Location":  cloneURL,
			"BuildSpec": cfg.BuildspecFile,
		},
		"Artifacts": map[string]any{"Type": "NO_ARTIFACTS"},
		"Environment": map[string]any{
			"Type":        "LINUX_CONTAINER",
			"ComputeType": cfg.ComputeType,
			"Image":       cfg.BuildImage,
		},
	})
	if err != nil {
		return err
	}

	eventsRole, err := construct.NewResource(v, "EventsRole", "AWS::IAM::Role", map[string]any{
		"AssumeRolePolicyDocument": assumeRolePolicy("events.amazonaws.com"),
		"Policies": []any{
			inlinePolicy("start-build", []any{
				statement("Allow", []any{"codebuild:StartBuild"}, v.Project.GetAtt("Arn")),
			}),
		},
	})
	if err != nil {
		return err
	}

	// Start the build on pull request creation or source branch update,
	// forwarding the PR coordinates into the build environment so the
	// comment function can correlate the result back to the PR.
	v.PullRequestRule, err = construct.NewResource(v, "OnPullRequestChange", "AWS::Events::Rule", map[string]any{
		"Name":  fmt.Sprintf("pull-request-event-%s", cfg.RepositoryName),
		"State": "ENABLED",
		"EventPattern": map[string]any{
			"source":      []any{"aws.codecommit"},
			"detail-type": []any{"CodeCommit Pull Request State Change"},
			"resources":   []any{repoArn},
			"detail": map[string]any{
				"event": []any{"pullRequestCreated", "pullRequestSourceBranchUpdated"},
			},
		},
		"Targets": []any{
			map[string]any{
				"Id":      "codebuild-project",
				"Arn":     v.Project.GetAtt("Arn"),
				"RoleArn": eventsRole.GetAtt("Arn"),
				"InputTransformer": map[string]any{
					"InputPathsMap": map[string]any{
						envPullRequestID:     "$.detail.pullRequestId",
						envRepositoryName:    "$.detail.repositoryNames[0]",
						envSourceCommit:      "$.detail.sourceCommit",
						envDestinationCommit: "$.detail.destinationCommit",
					},
					"InputTemplate": startBuildInputTemplate(),
				},
			},
		},
	})
	if err != nil {
		return err
	}

	functionRole, err := construct.NewResource(v, "UpdatePullRequestRole", "AWS::IAM::Role", map[string]any{
		"AssumeRolePolicyDocument": assumeRolePolicy("lambda.amazonaws.com"),
		"Policies": []any{
			inlinePolicy("logs", []any{
				statement("Allow",
					[]any{"logs:CreateLogGroup", "logs:CreateLogStream", "logs:PutLogEvents"},
					"*"),
			}),
			inlinePolicy("comment", []any{
				statement("Allow", []any{"codecommit:PostCommentForPullRequest"}, repoArn),
			}),
		},
	})
	if err != nil {
		return err
	}

	v.CodeBucketParameter, v.CodeKeyParameter, err = v.codeParameters(stack)
	if err != nil {
		return err
	}

	v.Function, err = construct.NewResource(v, "UpdatePullRequest", "AWS::Lambda::Function", map[string]any{
		"Runtime":    "provided.al2023",
		"Handler":    "bootstrap",
		"MemorySize": 256,
		"Timeout":    30,
		"Role":       functionRole.GetAtt("Arn"),
		"Code": map[string]any{
			"S3Bucket": cfn.Ref(v.CodeBucketParameter),
			"S3Key":    cfn.Ref(v.CodeKeyParameter),
		},
	})
	if err != nil {
		return err
	}

	v.BuildResultRule, err = construct.NewResource(v, "FinishBuildTrigger", "AWS::Events::Rule", map[string]any{
		"Name":        fmt.Sprintf("codebuild-status-trigger-lambda-%s", cfg.RepositoryName),
		"Description": "Posts the build result to the pull request when the validation build finishes",
		"State":       "ENABLED",
		"EventPattern": map[string]any{
			"source":      []any{"aws.codebuild"},
			"detail-type": []any{"CodeBuild Build State Change"},
			"detail": map[string]any{
				"build-status": []any{"SUCCEEDED", "FAILED", "STOPPED"},
				"project-name": []any{v.Project.Ref()},
			},
		},
		"Targets": []any{
			map[string]any{
				"Id":  "update-pull-request",
				"Arn": v.Function.GetAtt("Arn"),
			},
		},
	})
	if err != nil {
		return err
	}

	_, err = construct.NewResource(v, "InvokePermission", "AWS::Lambda::Permission", map[string]any{
		"Action":       "lambda:InvokeFunction",
		"FunctionName": v.Function.GetAtt("Arn"),
		"Principal":    "events.amazonaws.com",
		"SourceArn":    v.BuildResultRule.GetAtt("Arn"),
	})
	return err
}

// codeParameters declares the stack parameters locating the comment
// function's code artifact. Parameter names are derived from the construct
// path so two validators in one stack get distinct parameters.
func (v *PullRequestValidator) codeParameters(stack *construct.Stack) (bucket, key string, err error) {
	prefix := alphanumeric(v.base.Node().Path())

	bucket = prefix + "CodeBucket"
	if err := stack.AddParameter(bucket, cfn.Parameter{
		Type:        "String",
		Description: "S3 bucket holding the update-pull-request function artifact",
	}); err != nil {
		return "", "", err
	}

	key = prefix + "CodeKey"
	if err := stack.AddParameter(key, cfn.Parameter{
		Type:        "String",
		Description: "S3 key of the update-pull-request function artifact",
	}); err != nil {
		return "", "", err
	}
	return bucket, key, nil
}

// startBuildInputTemplate is the event input handed to StartBuild: the source
// commit to build plus environment variable overrides carrying the PR
// coordinates.
func startBuildInputTemplate() string {
	return `{` +
		`"sourceVersion":<` + envSourceCommit + `>,` +
		`"environmentVariablesOverride":[` +
		`{"name":"` + envPullRequestID + `","value":<` + envPullRequestID + `>,"type":"PLAINTEXT"},` +
		`{"name":"` + envRepositoryName + `","value":<` + envRepositoryName + `>,"type":"PLAINTEXT"},` +
		`{"name":"` + envSourceCommit + `","value":<` + envSourceCommit + `>,"type":"PLAINTEXT"},` +
		`{"name":"` + envDestinationCommit + `","value":<` + envDestinationCommit + `>,"type":"PLAINTEXT"}` +
		`]}`
}

func assumeRolePolicy(service string) map[string]any {
	return map[string]any{
		"Version": "2012-10-17",
		"Statement": []any{
			map[string]any{
				"Effect":    "Allow",
				"Principal": map[string]any{"Service": service},
				"Action":    "sts:AssumeRole",
			},
		},
	}
}

func inlinePolicy(name string, statements []any) map[string]any {
	return map[string]any{
		"PolicyName": name,
		"PolicyDocument": map[string]any{
			"Version":   "2012-10-17",
			"Statement": statements,
		},
	}
}

func statement(effect string, actions []any, resource any) map[string]any {
	return map[string]any{
		"Effect":   effect,
		"Action":   actions,
		"Resource": resource,
	}
}

func alphanumeric(path []string) string {
	var out []rune
	for _, component := range path {
		for _, r := range component {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
				out = append(out, r)
			}
		}
	}
	return string(out)
}
