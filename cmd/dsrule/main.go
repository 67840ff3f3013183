// Command dsrule is the Deep Security AWS Config rule binary. Deployed as a
// Lambda function it evaluates "is this EC2 instance protected by the named
// control" events; run from a workstation it exposes the same pipeline as a
// CLI for local test-drives and environment diagnostics.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/rs/zerolog"

	"github.com/deep-security/config-rules/internal/handler"
	"github.com/deep-security/config-rules/internal/providers/aws/compliance"
	"github.com/deep-security/config-rules/internal/providers/aws/secrets"
	"github.com/deep-security/config-rules/internal/providers/deepsecurity"
	"github.com/deep-security/config-rules/internal/ruleparams"
)

func main() {
	// The Lambda runtime sets this; its presence selects the handler loop
	// over the CLI.
	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		runLambda()
		return
	}

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runLambda starts the Lambda handler loop. Replies are rendered as plain
// maps so the wire contract seen by AWS matches the rule's original reply
// shapes.
func runLambda() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	lambda.Start(func(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
		log := logger
		if lc, ok := lambdacontext.FromContext(ctx); ok {
			log = log.With().Str("request_id", lc.AwsRequestID).Logger()
		}

		h, err := newProductionHandler(ctx, "", nil, log)
		if err != nil {
			log.Error().Err(err).Msg("handler initialisation failed")
			return nil, err
		}

		res, err := h.Handle(ctx, raw)
		if err != nil {
			log.Error().Err(err).Msg("invocation failed")
			return nil, err
		}
		return res.AsMap(), nil
	})
}

// newProductionHandler wires the evaluation pipeline with real AWS and Deep
// Security clients. A non-nil reporter overrides the AWS Config reporter
// (dry runs). An empty profile selects the default credential chain, which
// in Lambda is the execution role.
func newProductionHandler(ctx context.Context, profile string, reporter compliance.Reporter, log zerolog.Logger) (*handler.Handler, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS configuration: %w", err)
	}

	if reporter == nil {
		reporter = compliance.NewConfigReporter(cfg)
	}

	return &handler.Handler{
		Resolvers: func(source ruleparams.SecretSource) secrets.Resolver {
			return resolverFor(cfg, source)
		},
		NewManager: func(mc deepsecurity.ManagerConfig) handler.SessionManager {
			return deepsecurity.NewManager(mc)
		},
		Reporter: reporter,
		Logger:   log,
	}, nil
}

// resolverFor maps the dsSecretSource parameter onto a credentials backend.
func resolverFor(cfg aws.Config, source ruleparams.SecretSource) secrets.Resolver {
	if source == ruleparams.SecretSourceSecretsManager {
		return secrets.NewSecretsManagerResolver(cfg)
	}
	return secrets.NewSSMResolver(cfg)
}
