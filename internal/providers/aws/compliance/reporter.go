// Package compliance submits evaluation verdicts to the AWS Config service.
package compliance

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	configsvc "github.com/aws/aws-sdk-go-v2/service/configservice"
	configtypes "github.com/aws/aws-sdk-go-v2/service/configservice/types"

	"github.com/deep-security/config-rules/internal/models"
)

// Reporter submits one compliance evaluation to the configuration service
// using the invocation's result token.
type Reporter interface {
	Report(ctx context.Context, eval models.Evaluation, resultToken string) (*configsvc.PutEvaluationsOutput, error)
}

// ConfigReporter is the production Reporter backed by the AWS Config API.
type ConfigReporter struct {
	client configAPIClient
}

// NewConfigReporter builds a reporter from the given AWS configuration.
func NewConfigReporter(cfg awssdk.Config) *ConfigReporter {
	return &ConfigReporter{client: newConfigClient(cfg)}
}

// Report submits eval as a single-entry PutEvaluations call. An entry in the
// response's FailedEvaluations is treated as a submission failure even when
// the call itself succeeded.
func (r *ConfigReporter) Report(ctx context.Context, eval models.Evaluation, resultToken string) (*configsvc.PutEvaluationsOutput, error) {
	entry := configtypes.Evaluation{
		ComplianceResourceType: awssdk.String(eval.ResourceType),
		ComplianceResourceId:   awssdk.String(eval.ResourceID),
		ComplianceType:         complianceType(eval.Compliance),
		OrderingTimestamp:      awssdk.Time(eval.OrderedAt),
	}
	if eval.Annotation != "" {
		entry.Annotation = awssdk.String(eval.Annotation)
	}

	out, err := r.client.PutEvaluations(ctx, &configsvc.PutEvaluationsInput{
		Evaluations: []configtypes.Evaluation{entry},
		ResultToken: awssdk.String(resultToken),
	})
	if err != nil {
		return nil, fmt.Errorf("put evaluations for %s: %w", eval.ResourceID, err)
	}
	if len(out.FailedEvaluations) > 0 {
		return nil, fmt.Errorf("put evaluations for %s: %d evaluation(s) rejected",
			eval.ResourceID, len(out.FailedEvaluations))
	}
	return out, nil
}

// complianceType maps the internal verdict onto the AWS Config enum.
func complianceType(c models.Compliance) configtypes.ComplianceType {
	if c == models.ComplianceCompliant {
		return configtypes.ComplianceTypeCompliant
	}
	return configtypes.ComplianceTypeNonCompliant
}
