package secrets

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

type fakeSSM struct {
	out       *ssm.GetParametersOutput
	err       error
	lastInput *ssm.GetParametersInput
}

func (f *fakeSSM) GetParameters(_ context.Context, in *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	f.lastInput = in
	return f.out, f.err
}

func TestSSMResolver_Resolve(t *testing.T) {
	fake := &fakeSSM{
		out: &ssm.GetParametersOutput{
			Parameters: []ssmtypes.Parameter{
				{Name: aws.String("dsUser"), Value: aws.String("admin")},
				{Name: aws.String("dsPass"), Value: aws.String("s3cret")},
			},
		},
	}
	r := &SSMResolver{client: fake}

	creds, err := r.Resolve(context.Background(), "dsUser", "dsPass")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if creds.Username != "admin" || creds.Password != "s3cret" {
		t.Errorf("unexpected credentials: %+v", creds)
	}

	// Both parameters must be fetched in one decrypting call.
	if got := len(fake.lastInput.Names); got != 2 {
		t.Errorf("expected 2 parameter names in one call, got %d", got)
	}
	if !aws.ToBool(fake.lastInput.WithDecryption) {
		t.Error("expected WithDecryption to be set")
	}
}

func TestSSMResolver_InvalidParameter(t *testing.T) {
	fake := &fakeSSM{
		out: &ssm.GetParametersOutput{
			Parameters: []ssmtypes.Parameter{
				{Name: aws.String("dsUser"), Value: aws.String("admin")},
			},
			InvalidParameters: []string{"dsPass"},
		},
	}
	r := &SSMResolver{client: fake}

	_, err := r.Resolve(context.Background(), "dsUser", "dsPass")
	if err == nil {
		t.Fatal("expected error for invalid parameter")
	}
	if !strings.Contains(err.Error(), "dsPass") {
		t.Errorf("error should name the invalid parameter, got: %v", err)
	}
}

func TestSSMResolver_TransportError(t *testing.T) {
	r := &SSMResolver{client: &fakeSSM{err: errors.New("access denied")}}
	if _, err := r.Resolve(context.Background(), "u", "p"); err == nil {
		t.Fatal("expected transport error to propagate")
	}
}

type fakeSecretsManager struct {
	values map[string]string
	err    error
}

func (f *fakeSecretsManager) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.values[aws.ToString(in.SecretId)]
	if !ok {
		return nil, errors.New("secret not found")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func TestSecretsManagerResolver_Resolve(t *testing.T) {
	r := &SecretsManagerResolver{client: &fakeSecretsManager{
		values: map[string]string{
			"deepsecurity/username": "admin",
			"deepsecurity/password": "s3cret",
		},
	}}

	creds, err := r.Resolve(context.Background(), "deepsecurity/username", "deepsecurity/password")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if creds.Username != "admin" || creds.Password != "s3cret" {
		t.Errorf("unexpected credentials: %+v", creds)
	}
}

func TestSecretsManagerResolver_MissingSecret(t *testing.T) {
	r := &SecretsManagerResolver{client: &fakeSecretsManager{
		values: map[string]string{"deepsecurity/username": "admin"},
	}}

	_, err := r.Resolve(context.Background(), "deepsecurity/username", "deepsecurity/password")
	if err == nil {
		t.Fatal("expected error for missing password secret")
	}
	if !strings.Contains(err.Error(), "deepsecurity/password") {
		t.Errorf("error should name the missing secret, got: %v", err)
	}
}
