package tokend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretResolver 将 secret_ref 解析为 AppSecret / CorpSecret
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// SecretsManagerAPI *secretsmanager.Client 中用到的方法
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecrets 基于 AWS Secrets Manager 的 SecretResolver
type AWSSecrets struct {
	client SecretsManagerAPI
}

// NewAWSSecrets 使用默认凭证链创建指定区域的客户端
func NewAWSSecrets(ctx context.Context, region string) (*AWSSecrets, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewAWSSecretsWithClient(secretsmanager.NewFromConfig(cfg)), nil
}

func NewAWSSecretsWithClient(client SecretsManagerAPI) *AWSSecrets {
	return &AWSSecrets{client: client}
}

// Resolve 读取密钥；ref 为 "name#field" 时密钥须为 JSON 对象，返回其中的 field
func (s *AWSSecrets) Resolve(ctx context.Context, ref string) (string, error) {
	name, field, hasField := strings.Cut(ref, "#")
	if name == "" {
		return "", fmt.Errorf("invalid secret ref %q", ref)
	}

	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("fetch secret [%s]: %w", name, err)
	}
	raw := aws.ToString(out.SecretString)
	if raw == "" {
		return "", fmt.Errorf("secret [%s] has no string value", name)
	}
	if !hasField {
		return strings.TrimSpace(raw), nil
	}

	var values map[string]string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return "", fmt.Errorf("invalid secret format for [%s]: %w", name, err)
	}
	value, ok := values[field]
	if !ok || value == "" {
		return "", fmt.Errorf("secret [%s] has no field %q", name, field)
	}
	return value, nil
}

// resolveSecret 优先使用明文 secret
func resolveSecret(ctx context.Context, tc TenantConfig, resolver SecretResolver) (string, error) {
	if tc.Secret != "" {
		return tc.Secret, nil
	}
	if resolver == nil {
		return "", fmt.Errorf("tenant %s: secret_ref set but no secret resolver configured", tc.ID)
	}
	secret, err := resolver.Resolve(ctx, tc.SecretRef)
	if err != nil {
		return "", fmt.Errorf("tenant %s: %w", tc.ID, err)
	}
	return secret, nil
}
