// Package deploy provisions a synthesized validator template as a
// CloudFormation stack and stages the update-pull-request function artifact
// in S3.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
)

const stackWaitTimeout = 30 * time.Minute

// CloudFormationAPI is the subset of the CloudFormation client used by the
// deployer.
type CloudFormationAPI interface {
	DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
	CreateStack(ctx context.Context, params *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error)
	UpdateStack(ctx context.Context, params *cloudformation.UpdateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error)
}

// S3API is the subset of the S3 client used by the deployer.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// STSAPI is the subset of the STS client used by the deployer.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Deployer creates or updates validator stacks.
type Deployer struct {
	cfClient  CloudFormationAPI
	s3Client  S3API
	stsClient STSAPI
}

// Result describes a completed stack operation.
type Result struct {
	StackName string `json:"stack_name"`
	StackID   string `json:"stack_id"`
	Operation string `json:"operation"`
}

// New creates a Deployer.
func New(cfClient CloudFormationAPI, s3Client S3API, stsClient STSAPI) *Deployer {
	return &Deployer{
		cfClient:  cfClient,
		s3Client:  s3Client,
		stsClient: stsClient,
	}
}

// Deploy creates the stack if it does not exist, otherwise updates it. An
// update reporting no changes is treated as success. When wait is set, Deploy
// blocks until the stack operation completes.
func (d *Deployer) Deploy(ctx context.Context, stackName, templateBody string, parameters []types.Parameter, wait bool) (result *Result, err error) {
	logger := zerolog.Ctx(ctx)

	defer func(begin time.Time) {
		logger.Info().
			Interface("error", err).
			Str("stack_name", stackName).
			Dur("duration", time.Since(begin)).
			Msg("Deploy completed")
	}(time.Now())

	exists, err := d.stackExists(ctx, stackName)
	if err != nil {
		return nil, fmt.Errorf("failed to check if stack exists: %w", err)
	}

	if exists {
		result, err = d.updateStack(ctx, stackName, templateBody, parameters)
		if err != nil {
			return nil, fmt.Errorf("failed to update stack: %w", err)
		}
	} else {
		result, err = d.createStack(ctx, stackName, templateBody, parameters)
		if err != nil {
			return nil, fmt.Errorf("failed to create stack: %w", err)
		}
	}

	if wait && result.Operation != OperationNone {
		if err := d.waitForStack(ctx, stackName, result.Operation); err != nil {
			return nil, fmt.Errorf("stack operation did not complete: %w", err)
		}
	}

	logger.Info().
		Str("operation", result.Operation).
		Str("stack_name", stackName).
		Msg("Stack deployment completed")
	return result, nil
}

// Stack operations reported in Result.Operation.
const (
	OperationCreate = "CREATE"
	OperationUpdate = "UPDATE"
	OperationNone   = "NONE"
)

func (d *Deployer) stackExists(ctx context.Context, stackName string) (bool, error) {
	_, err := d.cfClient.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(stackName),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			if apiErr.ErrorCode() == "ValidationError" || strings.Contains(apiErr.ErrorMessage(), "does not exist") {
				return false, nil
			}
		}
		return false, err
	}
	return true, nil
}

func (d *Deployer) createStack(ctx context.Context, stackName, templateBody string, parameters []types.Parameter) (*Result, error) {
	result, err := d.cfClient.CreateStack(ctx, &cloudformation.CreateStackInput{
		StackName:    aws.String(stackName),
		TemplateBody: aws.String(templateBody),
		Parameters:   parameters,
		Capabilities: []types.Capability{
			types.CapabilityCapabilityIam,
		},
		Tags: []types.Tag{
			{
				Key:   aws.String("ManagedBy"),
				Value: aws.String("pr-validator"),
			},
		},
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		StackName: stackName,
		StackID:   aws.ToString(result.StackId),
		Operation: OperationCreate,
	}, nil
}

func (d *Deployer) updateStack(ctx context.Context, stackName, templateBody string, parameters []types.Parameter) (*Result, error) {
	logger := zerolog.Ctx(ctx)

	result, err := d.cfClient.UpdateStack(ctx, &cloudformation.UpdateStackInput{
		StackName:    aws.String(stackName),
		TemplateBody: aws.String(templateBody),
		Parameters:   parameters,
		Capabilities: []types.Capability{
			types.CapabilityCapabilityIam,
		},
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			if apiErr.ErrorCode() == "ValidationError" &&
				strings.Contains(apiErr.ErrorMessage(), "No updates") {
				logger.Info().Str("stack_name", stackName).Msg("No updates needed for stack")
				return &Result{
					StackName: stackName,
					StackID:   stackName,
					Operation: OperationNone,
				}, nil
			}
		}
		return nil, err
	}

	return &Result{
		StackName: stackName,
		StackID:   aws.ToString(result.StackId),
		Operation: OperationUpdate,
	}, nil
}

func (d *Deployer) waitForStack(ctx context.Context, stackName, operation string) error {
	input := &cloudformation.DescribeStacksInput{StackName: aws.String(stackName)}

	switch operation {
	case OperationCreate:
		waiter := cloudformation.NewStackCreateCompleteWaiter(d.cfClient)
		return waiter.Wait(ctx, input, stackWaitTimeout)
	case OperationUpdate:
		waiter := cloudformation.NewStackUpdateCompleteWaiter(d.cfClient)
		return waiter.Wait(ctx, input, stackWaitTimeout)
	default:
		return nil
	}
}

// UploadArtifact stages a local file, typically the packaged
// update-pull-request function, in S3.
func (d *Deployer) UploadArtifact(ctx context.Context, bucket, key, path string) (err error) {
	logger := zerolog.Ctx(ctx)

	defer func(begin time.Time) {
		logger.Info().
			Interface("error", err).
			Str("bucket", bucket).
			Str("key", key).
			Str("path", path).
			Dur("duration", time.Since(begin)).
			Msg("Uploaded artifact")
	}(time.Now())

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open artifact %s: %w", path, err)
	}
	//goland:noinspection GoUnhandledErrorResult
	defer f.Close()

	_, err = d.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("failed to upload artifact to s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// DefaultArtifactBucket derives the artifact bucket name from the caller's
// account, used when no bucket is configured.
func (d *Deployer) DefaultArtifactBucket(ctx context.Context, region string) (string, error) {
	identity, err := d.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to resolve caller identity: %w", err)
	}
	return fmt.Sprintf("pr-validator-artifacts-%s-%s", aws.ToString(identity.Account), region), nil
}

// NewArtifactKey returns a fresh, unique S3 key for an artifact upload so
// CloudFormation sees a changed code location on every deploy.
func NewArtifactKey() string {
	return fmt.Sprintf("update-pull-request/%s/bootstrap.zip", ksuid.New().String())
}
