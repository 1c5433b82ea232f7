// Package secrets resolves credentials kept in AWS Secrets Manager.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
)

// ErrSecretNotFound is returned when the secret id does not exist.
var ErrSecretNotFound = errors.New("secret not found")

// ManagerAPI is the subset of the Secrets Manager client used here.
type ManagerAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Resolver reads secret values.
type Resolver struct {
	API ManagerAPI
}

// NewResolver builds a Resolver from the default AWS credential chain.
func NewResolver(ctx context.Context, region string) (*Resolver, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("secrets: load aws config: %w", err)
	}
	return &Resolver{API: secretsmanager.NewFromConfig(cfg)}, nil
}

// Value returns the secret stored under id. When the secret string is a JSON
// object, the value of key is returned instead of the whole document.
func (r *Resolver) Value(ctx context.Context, id, key string) (string, error) {
	out, err := r.API.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ResourceNotFoundException" {
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, id)
		}
		return "", fmt.Errorf("secrets: get %s: %w", id, err)
	}

	var raw string
	switch {
	case out.SecretString != nil:
		raw = *out.SecretString
	case out.SecretBinary != nil:
		raw = string(out.SecretBinary)
	default:
		return "", fmt.Errorf("secrets: %s has no value", id)
	}

	trimmed := strings.TrimSpace(raw)
	if key != "" && strings.HasPrefix(trimmed, "{") {
		var doc map[string]any
		if err := json.Unmarshal([]byte(trimmed), &doc); err == nil {
			v, ok := doc[key].(string)
			if !ok || v == "" {
				return "", fmt.Errorf("secrets: %s has no %q entry", id, key)
			}
			return v, nil
		}
	}
	return trimmed, nil
}
