package aws

import (
	"context"
	"fmt"
	"os"

	"github.com/Layr-Labs/confidential-calls-go/pkg/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

const serviceAccountTokenPath = "/var/run/secrets/kubernetes.io/serviceaccount/token"

// LoadAWSConfig resolves credentials from the shared profile, or from the pod identity
// when running in Kubernetes.
func LoadAWSConfig(ctx context.Context, regionOverride string) (aws.Config, error) {
	return awsConfig.LoadDefaultConfig(ctx, loadOptions(regionOverride, isInKubernetes())...)
}

// NewKMSClient builds the KMS client used by the call signer for cfg.
func NewKMSClient(ctx context.Context, cfg *config.AWSKMSSignerConfig) (*kms.Client, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return kms.NewFromConfig(awsCfg, kmsOptions(cfg)...), nil
}

func loadOptions(regionOverride string, inKubernetes bool) []func(*awsConfig.LoadOptions) error {
	var options []func(*awsConfig.LoadOptions) error
	if !inKubernetes {
		options = append(options, awsConfig.WithSharedConfigProfile(getProfile()))
	}
	if regionOverride != "" {
		options = append(options, awsConfig.WithRegion(regionOverride))
	}
	return options
}

// kmsOptions points the client at a custom endpoint, e.g. a local KMS emulator.
func kmsOptions(cfg *config.AWSKMSSignerConfig) []func(*kms.Options) {
	if cfg.Endpoint == "" {
		return nil
	}
	endpoint := cfg.Endpoint
	return []func(*kms.Options){
		func(o *kms.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		},
	}
}

func isInKubernetes() bool {
	_, err := os.Stat(serviceAccountTokenPath)
	return err == nil
}

func getProfile() string {
	if profile := os.Getenv("AWS_PROFILE"); profile != "" {
		return profile
	}
	return "default"
}
