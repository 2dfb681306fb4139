package deploy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCloudFormation struct {
	describeErr error
	updateErr   error

	createCalled bool
	updateCalled bool
	lastCreate   *cloudformation.CreateStackInput
	lastUpdate   *cloudformation.UpdateStackInput
}

func (f *fakeCloudFormation) DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	return &cloudformation.DescribeStacksOutput{}, nil
}

func (f *fakeCloudFormation) CreateStack(ctx context.Context, params *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error) {
	f.createCalled = true
	f.lastCreate = params
	return &cloudformation.CreateStackOutput{StackId: aws.String("stack-id-create")}, nil
}

func (f *fakeCloudFormation) UpdateStack(ctx context.Context, params *cloudformation.UpdateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error) {
	f.updateCalled = true
	f.lastUpdate = params
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &cloudformation.UpdateStackOutput{StackId: aws.String("stack-id-update")}, nil
}

type fakeS3 struct {
	lastPut *s3.PutObjectInput
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.lastPut = params
	return &s3.PutObjectOutput{}, nil
}

type fakeSTS struct {
	account string
}

func (f *fakeSTS) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return &sts.GetCallerIdentityOutput{
		Account: aws.String(f.account),
		Arn:     aws.String("arn:aws:iam::" + f.account + ":user/test"),
	}, nil
}

func stackMissingErr() error {
	return &smithy.GenericAPIError{
		Code:    "ValidationError",
		Message: "Stack with id pr-validator-my-repo does not exist",
	}
}

func TestDeploy_CreatesMissingStack(t *testing.T) {
	cf := &fakeCloudFormation{describeErr: stackMissingErr()}
	deployer := New(cf, &fakeS3{}, &fakeSTS{})

	result, err := deployer.Deploy(context.Background(), "pr-validator-my-repo", "{}", nil, false)
	require.NoError(t, err)

	assert.True(t, cf.createCalled)
	assert.False(t, cf.updateCalled)
	assert.Equal(t, OperationCreate, result.Operation)
	assert.Equal(t, "stack-id-create", result.StackID)

	require.NotNil(t, cf.lastCreate)
	assert.Equal(t, "{}", aws.ToString(cf.lastCreate.TemplateBody))
	require.Len(t, cf.lastCreate.Tags, 1)
	assert.Equal(t, "ManagedBy", aws.ToString(cf.lastCreate.Tags[0].Key))
}

func TestDeploy_UpdatesExistingStack(t *testing.T) {
	cf := &fakeCloudFormation{}
	deployer := New(cf, &fakeS3{}, &fakeSTS{})

	result, err := deployer.Deploy(context.Background(), "pr-validator-my-repo", "{}", nil, false)
	require.NoError(t, err)

	assert.True(t, cf.updateCalled)
	assert.False(t, cf.createCalled)
	assert.Equal(t, OperationUpdate, result.Operation)
}

func TestDeploy_NoUpdatesIsSuccess(t *testing.T) {
	cf := &fakeCloudFormation{
		updateErr: &smithy.GenericAPIError{
			Code:    "ValidationError",
			Message: "No updates are to be performed.",
		},
	}
	deployer := New(cf, &fakeS3{}, &fakeSTS{})

	result, err := deployer.Deploy(context.Background(), "pr-validator-my-repo", "{}", nil, false)
	require.NoError(t, err)
	assert.Equal(t, OperationNone, result.Operation)
}

func TestDeploy_UpdateFailurePropagates(t *testing.T) {
	cf := &fakeCloudFormation{
		updateErr: &smithy.GenericAPIError{
			Code:    "InsufficientCapabilities",
			Message: "Requires capabilities: [CAPABILITY_IAM]",
		},
	}
	deployer := New(cf, &fakeS3{}, &fakeSTS{})

	_, err := deployer.Deploy(context.Background(), "pr-validator-my-repo", "{}", nil, false)
	require.Error(t, err)
}

func TestUploadArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bootstrap.zip")
	require.NoError(t, os.WriteFile(path, []byte("artifact-bytes"), 0o644))

	s3Client := &fakeS3{}
	deployer := New(&fakeCloudFormation{}, s3Client, &fakeSTS{})

	err := deployer.UploadArtifact(context.Background(), "artifacts", "update-pull-request/bootstrap.zip", path)
	require.NoError(t, err)

	require.NotNil(t, s3Client.lastPut)
	assert.Equal(t, "artifacts", aws.ToString(s3Client.lastPut.Bucket))
	assert.Equal(t, "update-pull-request/bootstrap.zip", aws.ToString(s3Client.lastPut.Key))
}

func TestUploadArtifact_MissingFile(t *testing.T) {
	deployer := New(&fakeCloudFormation{}, &fakeS3{}, &fakeSTS{})

	err := deployer.UploadArtifact(context.Background(), "artifacts", "key", "/nonexistent/bootstrap.zip")
	require.Error(t, err)
}

func TestDefaultArtifactBucket(t *testing.T) {
	deployer := New(&fakeCloudFormation{}, &fakeS3{}, &fakeSTS{account: "123456789012"})

	bucket, err := deployer.DefaultArtifactBucket(context.Background(), "us-west-2")
	require.NoError(t, err)
	assert.Equal(t, "pr-validator-artifacts-123456789012-us-west-2", bucket)
}

func TestNewArtifactKey(t *testing.T) {
	first := NewArtifactKey()
	second := NewArtifactKey()

	assert.True(t, strings.HasPrefix(first, "update-pull-request/"))
	assert.True(t, strings.HasSuffix(first, "/bootstrap.zip"))
	assert.NotEqual(t, first, second, "keys are unique per deploy")
}
