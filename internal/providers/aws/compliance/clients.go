package compliance

import (
	"context"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	configsvc "github.com/aws/aws-sdk-go-v2/service/configservice"
)

// configAPIClient is the narrow AWS Config interface used for evaluation
// submission. Only PutEvaluations is required.
type configAPIClient interface {
	PutEvaluations(ctx context.Context, params *configsvc.PutEvaluationsInput, optFns ...func(*configsvc.Options)) (*configsvc.PutEvaluationsOutput, error)
}

// newConfigClient holds the client constructor; tests override it to inject
// a fake client.
var newConfigClient = func(cfg awssdk.Config) configAPIClient {
	return configsvc.NewFromConfig(cfg)
}
