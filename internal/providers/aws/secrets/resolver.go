// Package secrets resolves the Deep Security credentials named by the rule's
// lookup keys. The keys are indirection into an AWS secret store, never raw
// credentials; two backends are supported, SSM Parameter Store (the default)
// and Secrets Manager.
package secrets

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Credentials is a resolved username/password pair. Values are plaintext and
// must never be logged.
type Credentials struct {
	Username string
	Password string
}

// Resolver turns a pair of lookup keys into plaintext credentials.
type Resolver interface {
	Resolve(ctx context.Context, usernameKey, passwordKey string) (Credentials, error)
}

// Factory variables holding the client constructors, overridden in tests.
var (
	newSSMClient = func(cfg aws.Config) ssmAPIClient {
		return ssm.NewFromConfig(cfg)
	}
	newSecretsManagerClient = func(cfg aws.Config) secretsManagerAPIClient {
		return secretsmanager.NewFromConfig(cfg)
	}
)

// SSMResolver reads both credentials from SSM Parameter Store in a single
// GetParameters call, with decryption enabled for SecureString parameters.
type SSMResolver struct {
	client ssmAPIClient
}

// NewSSMResolver returns a resolver backed by SSM Parameter Store.
func NewSSMResolver(cfg aws.Config) *SSMResolver {
	return &SSMResolver{client: newSSMClient(cfg)}
}

// Resolve fetches the two named parameters. A parameter the store rejects or
// omits fails the resolution with the offending name(s) in the error.
func (r *SSMResolver) Resolve(ctx context.Context, usernameKey, passwordKey string) (Credentials, error) {
	out, err := r.client.GetParameters(ctx, &ssm.GetParametersInput{
		Names:          []string{usernameKey, passwordKey},
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("get SSM parameters: %w", err)
	}
	if len(out.InvalidParameters) > 0 {
		return Credentials{}, fmt.Errorf("invalid SSM parameters [%s]",
			strings.Join(out.InvalidParameters, ", "))
	}

	values := make(map[string]string, len(out.Parameters))
	for _, p := range out.Parameters {
		if p.Name != nil && p.Value != nil {
			values[*p.Name] = *p.Value
		}
	}

	username, ok := values[usernameKey]
	if !ok {
		return Credentials{}, fmt.Errorf("SSM parameter %q missing from response", usernameKey)
	}
	password, ok := values[passwordKey]
	if !ok {
		return Credentials{}, fmt.Errorf("SSM parameter %q missing from response", passwordKey)
	}
	return Credentials{Username: username, Password: password}, nil
}

// SecretsManagerResolver reads each credential from its own Secrets Manager
// secret; the secret's string value is the credential.
type SecretsManagerResolver struct {
	client secretsManagerAPIClient
}

// NewSecretsManagerResolver returns a resolver backed by Secrets Manager.
func NewSecretsManagerResolver(cfg aws.Config) *SecretsManagerResolver {
	return &SecretsManagerResolver{client: newSecretsManagerClient(cfg)}
}

// Resolve fetches both secrets by name or ARN.
func (r *SecretsManagerResolver) Resolve(ctx context.Context, usernameKey, passwordKey string) (Credentials, error) {
	username, err := r.getSecretString(ctx, usernameKey)
	if err != nil {
		return Credentials{}, err
	}
	password, err := r.getSecretString(ctx, passwordKey)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{Username: username, Password: password}, nil
}

func (r *SecretsManagerResolver) getSecretString(ctx context.Context, secretID string) (string, error) {
	out, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", fmt.Errorf("get secret %q: %w", secretID, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %q has no string value", secretID)
	}
	return *out.SecretString, nil
}
