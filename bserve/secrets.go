package bserve

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-secretsmanager-caching-go/v2/secretcache"
	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"
)

// SecretReader reads secret values by id.
type SecretReader interface {
	GetSecretString(ctx context.Context, secretID string) (string, error)
}

// CachedSecretReader reads secrets from AWS Secrets Manager through the caching client, so that
// entries can read secrets per request and still pick up rotations.
type CachedSecretReader struct {
	cache *secretcache.Cache
}

// NewCachedSecretReader creates a secret reader for the provided AWS config.
func NewCachedSecretReader(cfg aws.Config) (*CachedSecretReader, error) {
	client := secretsmanager.NewFromConfig(cfg)

	cache, err := secretcache.New(func(c *secretcache.Cache) { c.Client = client })
	if err != nil {
		return nil, errors.Wrap(err, "failed to create secret cache")
	}

	return &CachedSecretReader{cache: cache}, nil
}

// GetSecretString implements [SecretReader].
func (r *CachedSecretReader) GetSecretString(ctx context.Context, secretID string) (string, error) {
	secret, err := r.cache.GetSecretStringWithContext(ctx, secretID)
	if err != nil {
		return "", errors.Wrapf(err, "failed to get secret %q", secretID)
	}

	return secret, nil
}

// readSecret resolves a secret reference. A reference is a secret id, optionally followed by '#' and
// a gjson path into the secret's JSON value, e.g. "db-credentials#primary.password".
func readSecret(ctx context.Context, reader SecretReader, ref string) (string, error) {
	secretID, path, hasPath := strings.Cut(ref, "#")
	if secretID == "" {
		return "", errors.Newf("secret reference %q has no secret id", ref)
	}

	secret, err := reader.GetSecretString(ctx, secretID)
	if err != nil {
		return "", err
	}

	if !hasPath || path == "" {
		return secret, nil
	}

	if !gjson.Valid(secret) {
		return "", errors.Newf("secret %q is not valid JSON, cannot read path %q", secretID, path)
	}

	result := gjson.Get(secret, path)
	if !result.Exists() {
		return "", errors.Newf("secret path %q not found in secret %q", path, secretID)
	}

	return result.String(), nil
}

var _ SecretReader = (*CachedSecretReader)(nil)
