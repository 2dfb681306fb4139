package di

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/harborline/pr-validator/internal/deploy"
	"github.com/harborline/pr-validator/internal/services"
	"github.com/rs/zerolog"
)

func ProvideAWSConfig(ctx context.Context) (aws.Config, error) {
	return config.LoadDefaultConfig(ctx)
}

func ProvideCloudFormation(config aws.Config) *cloudformation.Client {
	return cloudformation.NewFromConfig(config)
}

func ProvideS3(config aws.Config) *s3.Client {
	return s3.NewFromConfig(config)
}

func ProvideSTS(config aws.Config) *sts.Client {
	return sts.NewFromConfig(config)
}

func ProvideCodeBuild(config aws.Config) *codebuild.Client {
	return codebuild.NewFromConfig(config)
}

// ProvideSSMClient provides an SSM client for Parameter Store access.
// Returns nil when SSM is disabled for local development.
func ProvideSSMClient(awsConfig aws.Config) *ssm.Client {
	if os.Getenv("DISABLE_SSM") == "true" {
		return nil
	}
	return ssm.NewFromConfig(awsConfig)
}

// ProvideParameterStore provides a ParameterStore implementation. Uses SSM
// Parameter Store in AWS, falls back to environment variables when disabled.
func ProvideParameterStore(ctx context.Context, ssmClient *ssm.Client, env Env) services.ParameterStore {
	logger := zerolog.Ctx(ctx)

	if ssmClient == nil {
		logger.Info().Msg("Using environment variables for configuration (SSM disabled)")
		return services.NewEnvParameterStore(string(env))
	}

	logger.Info().Msg("Using AWS Systems Manager Parameter Store for configuration")
	return services.NewSSMParameterStore(ssmClient, string(env))
}

func ProvideDeployer(cfClient *cloudformation.Client, s3Client *s3.Client, stsClient *sts.Client) *deploy.Deployer {
	return deploy.New(cfClient, s3Client, stsClient)
}
