package crypto

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

var loadDefaultAWSConfig = config.LoadDefaultConfig

// secretValueGetter is the part of the Secrets Manager client we use.
type secretValueGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretConfig configures the Secrets Manager backend.
type AWSSecretConfig struct {
	Region          string
	AccessKeyID     string // optional; default credential chain when empty
	SecretAccessKey string
	Endpoint        string // optional
	Field           string // JSON field holding the key inside the secret string
}

// AWSSecretBackend reads the master key from AWS Secrets Manager.
type AWSSecretBackend struct {
	client secretValueGetter
	field  string
}

// NewAWSSecretBackend loads AWS configuration and builds a Secrets Manager client.
func NewAWSSecretBackend(ctx context.Context, cfg AWSSecretConfig) (*AWSSecretBackend, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := secretsmanager.NewFromConfig(awsCfg, func(o *secretsmanager.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return newAWSSecretBackend(client, cfg.Field), nil
}

func newAWSSecretBackend(client secretValueGetter, field string) *AWSSecretBackend {
	return &AWSSecretBackend{client: client, field: field}
}

// FetchKey returns the key material stored under name. A JSON secret string
// yields its configured field; any other string is returned whole.
func (b *AWSSecretBackend) FetchKey(ctx context.Context, name string) ([]byte, error) {
	out, err := b.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSecretUnavailable, err)
	}

	var value string
	switch {
	case out.SecretString != nil:
		value = *out.SecretString
	case len(out.SecretBinary) > 0:
		value = string(out.SecretBinary)
	default:
		return nil, fmt.Errorf("%w: secret %q is empty", ErrSecretUnavailable, name)
	}

	return extractSecretField(value, b.field, name)
}

func extractSecretField(value, field, name string) ([]byte, error) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "{") {
		return []byte(trimmed), nil
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return nil, fmt.Errorf("%w: secret %q is not valid JSON: %v", ErrSecretUnavailable, name, err)
	}
	raw, ok := fields[field].(string)
	if !ok || raw == "" {
		return nil, fmt.Errorf("%w: secret %q has no field %q", ErrSecretUnavailable, name, field)
	}
	return []byte(raw), nil
}
