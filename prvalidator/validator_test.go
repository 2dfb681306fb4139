package prvalidator

import (
	"testing"

	"github.com/harborline/pr-validator/cfn"
	"github.com/harborline/pr-validator/construct"
	xerrors "github.com/harborline/pr-validator/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStack(t *testing.T) *construct.Stack {
	t.Helper()

	stack, err := construct.NewStack("test-stack", "")
	require.NoError(t, err)
	return stack
}

func resourcesOfType(template *cfn.Template, resourceType string) []*cfn.Resource {
	var matches []*cfn.Resource
	for _, resource := range template.Resources {
		if resource.Type == resourceType {
			matches = append(matches, resource)
		}
	}
	return matches
}

func TestNew_DeclaresProjectAndTrigger(t *testing.T) {
	stack := newTestStack(t)

	validator, err := New(stack, "Validator", Config{
		RepositoryName: "my-repo",
		BuildspecFile:  "deploy/buildspec.yaml",
	})
	require.NoError(t, err)

	template := stack.Synth()

	projects := resourcesOfType(template, "AWS::CodeBuild::Project")
	require.Len(t, projects, 1, "exactly one build project")

	source, ok := projects[0].Properties["Source"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "deploy/buildspec.yaml", source["BuildSpec"])
	assert.Equal(t, "CODECOMMIT", source["Type"])

	rules := resourcesOfType(template, "AWS::Events::Rule")
	require.Len(t, rules, 2, "a pull request trigger and a build result trigger")

	prRule := template.Resources[validator.PullRequestRule.LogicalID()]
	require.NotNil(t, prRule)
	assert.Equal(t, "pull-request-event-my-repo", prRule.Properties["Name"])

	pattern, ok := prRule.Properties["EventPattern"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"aws.codecommit"}, pattern["source"])
	assert.Equal(t, []any{"CodeCommit Pull Request State Change"}, pattern["detail-type"])

	detail, ok := pattern["detail"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"pullRequestCreated", "pullRequestSourceBranchUpdated"}, detail["event"])
}

func TestNew_ForwardsPullRequestCoordinates(t *testing.T) {
	stack := newTestStack(t)

	validator, err := New(stack, "Validator", Config{
		RepositoryName: "my-repo",
		BuildspecFile:  "buildspec.yaml",
	})
	require.NoError(t, err)

	prRule := stack.Synth().Resources[validator.PullRequestRule.LogicalID()]
	targets, ok := prRule.Properties["Targets"].([]any)
	require.True(t, ok)
	require.Len(t, targets, 1)

	transformer, ok := targets[0].(map[string]any)["InputTransformer"].(map[string]any)
	require.True(t, ok)

	paths, ok := transformer["InputPathsMap"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "$.detail.pullRequestId", paths["pullRequestId"])
	assert.Equal(t, "$.detail.repositoryNames[0]", paths["repositoryName"])
	assert.Equal(t, "$.detail.sourceCommit", paths["sourceCommit"])
	assert.Equal(t, "$.detail.destinationCommit", paths["destinationCommit"])

	inputTemplate, ok := transformer["InputTemplate"].(string)
	require.True(t, ok)
	assert.Contains(t, inputTemplate, `"sourceVersion":<sourceCommit>`)
	assert.Contains(t, inputTemplate, `"environmentVariablesOverride"`)
}

func TestNew_DeclaresStatusCallback(t *testing.T) {
	stack := newTestStack(t)

	validator, err := New(stack, "Validator", Config{
		RepositoryName: "my-repo",
		BuildspecFile:  "buildspec.yaml",
	})
	require.NoError(t, err)

	template := stack.Synth()

	function := template.Resources[validator.Function.LogicalID()]
	require.NotNil(t, function)
	assert.Equal(t, "AWS::Lambda::Function", function.Type)
	assert.Equal(t, 256, function.Properties["MemorySize"])
	assert.Equal(t, 30, function.Properties["Timeout"])

	resultRule := template.Resources[validator.BuildResultRule.LogicalID()]
	require.NotNil(t, resultRule)
	assert.Equal(t, "codebuild-status-trigger-lambda-my-repo", resultRule.Properties["Name"])

	pattern := resultRule.Properties["EventPattern"].(map[string]any)
	detail := pattern["detail"].(map[string]any)
	assert.Equal(t, []any{"SUCCEEDED", "FAILED", "STOPPED"}, detail["build-status"])

	// The code location parameters are declared on the stack.
	assert.Contains(t, template.Parameters, validator.CodeBucketParameter)
	assert.Contains(t, template.Parameters, validator.CodeKeyParameter)

	permissions := resourcesOfType(template, "AWS::Lambda::Permission")
	require.Len(t, permissions, 1)
	assert.Equal(t, "events.amazonaws.com", permissions[0].Properties["Principal"])
}

func TestNew_ValidatesConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{
			name:    "empty repository name",
			cfg:     Config{BuildspecFile: "buildspec.yaml"},
			wantErr: xerrors.ErrRepositoryNameRequired,
		},
		{
			name:    "empty buildspec file",
			cfg:     Config{RepositoryName: "my-repo"},
			wantErr: xerrors.ErrBuildspecFileRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stack := newTestStack(t)

			_, err := New(stack, "Validator", tt.cfg)
			require.ErrorIs(t, err, tt.wantErr)

			// Nothing was declared.
			assert.Empty(t, stack.Synth().Resources)
			assert.Empty(t, stack.Synth().Parameters)
		})
	}
}

func TestNew_DuplicateIDRejected(t *testing.T) {
	stack := newTestStack(t)
	cfg := Config{RepositoryName: "my-repo", BuildspecFile: "buildspec.yaml"}

	_, err := New(stack, "Validator", cfg)
	require.NoError(t, err)

	_, err = New(stack, "Validator", cfg)
	require.ErrorIs(t, err, xerrors.ErrDuplicateConstructID)
}

func TestNew_SynthesisIsDeterministic(t *testing.T) {
	synth := func() []byte {
		stack, err := construct.NewStack("test-stack", "")
		require.NoError(t, err)

		_, err = New(stack, "Validator", Config{
			RepositoryName: "my-repo",
			BuildspecFile:  "deploy/buildspec.yaml",
		})
		require.NoError(t, err)

		body, err := stack.Synth().JSON()
		require.NoError(t, err)
		return body
	}

	assert.Equal(t, string(synth()), string(synth()))
}

func TestNew_TwoValidatorsInOneStack(t *testing.T) {
	stack := newTestStack(t)

	first, err := New(stack, "ValidatorA", Config{
		RepositoryName: "repo-a",
		BuildspecFile:  "buildspec.yaml",
	})
	require.NoError(t, err)

	second, err := New(stack, "ValidatorB", Config{
		RepositoryName: "repo-b",
		BuildspecFile:  "buildspec.yaml",
	})
	require.NoError(t, err)

	assert.NotEqual(t, first.Project.LogicalID(), second.Project.LogicalID())
	assert.NotEqual(t, first.CodeBucketParameter, second.CodeBucketParameter)

	template := stack.Synth()
	assert.Len(t, resourcesOfType(template, "AWS::CodeBuild::Project"), 2)
}

func TestNew_DefaultsApplied(t *testing.T) {
	stack := newTestStack(t)

	validator, err := New(stack, "Validator", Config{
		RepositoryName: "my-repo",
		BuildspecFile:  "buildspec.yaml",
	})
	require.NoError(t, err)

	project := stack.Synth().Resources[validator.Project.LogicalID()]
	environment := project.Properties["Environment"].(map[string]any)
	assert.Equal(t, "BUILD_GENERAL1_SMALL", environment["ComputeType"])
	assert.Equal(t, "aws/codebuild/standard:7.0", environment["Image"])
}
