package tokend

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
listen: ":9090"
api_keys: ["alpha", "beta"]
log:
  env: dev
  level: debug
redis:
  addr: "localhost:6379"
  db: 2
  prefix: "tokend:"
nats:
  url: "nats://localhost:4222"
  include_value: true
aws:
  region: ap-east-1
warmup:
  schedule: "*/5 * * * *"
  margin: 15m
tenants:
  - id: mp
    kind: officialaccount
    app_id: wx123
    secret: s3cr3t
  - id: corp-crm
    kind: work
    corp_id: ww456
    agent_id: 1000002
    secret_ref: "prod/wechat/crm#corpsecret"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokend.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_File(t *testing.T) {
	cfg, err := LoadConfig(viper.New(), writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, []string{"alpha", "beta"}, cfg.APIKeys)
	assert.Equal(t, LogConfig{Env: "dev", Level: "debug"}, cfg.Log)
	assert.Equal(t, RedisConfig{Addr: "localhost:6379", DB: 2, Prefix: "tokend:"}, cfg.Redis)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "wechatkit.credential.updated", cfg.NATS.Subject)
	assert.True(t, cfg.NATS.IncludeValue)
	assert.Equal(t, 15*time.Minute, cfg.Warmup.Margin)
	require.Len(t, cfg.Tenants, 2)
	assert.Equal(t, TenantConfig{
		ID:        "corp-crm",
		Kind:      KindWork,
		CorpID:    "ww456",
		AgentID:   1000002,
		SecretRef: "prod/wechat/crm#corpsecret",
	}, cfg.Tenants[1])
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("WECHATKIT_LISTEN", ":7070")
	t.Setenv("WECHATKIT_REDIS_ADDR", "redis:6380")
	t.Setenv("WECHATKIT_WARMUP_MARGIN", "2m")
	t.Setenv("WECHATKIT_API_KEYS", "x,y")

	cfg, err := LoadConfig(viper.New(), writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Listen)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, 2*time.Minute, cfg.Warmup.Margin)
	assert.Equal(t, []string{"x", "y"}, cfg.APIKeys)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(viper.New(), writeConfig(t, `
tenants:
  - id: mini
    kind: miniprogram
    app_id: wxmini
    secret: s
`))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "@every 1m", cfg.Warmup.Schedule)
	assert.Equal(t, 10*time.Minute, cfg.Warmup.Margin)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.APIKeys)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Listen:  ":8080",
			Warmup:  WarmupConfig{Schedule: "@every 1m"},
			Tenants: []TenantConfig{{ID: "mp", Kind: KindOfficialAccount, AppID: "wx", Secret: "s"}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "no tenants", mutate: func(c *Config) { c.Tenants = nil }, wantErr: "at least one tenant"},
		{name: "bad schedule", mutate: func(c *Config) { c.Warmup.Schedule = "soon" }, wantErr: "warmup.schedule"},
		{name: "negative margin", mutate: func(c *Config) { c.Warmup.Margin = -time.Second }, wantErr: "margin"},
		{name: "unknown kind", mutate: func(c *Config) { c.Tenants[0].Kind = "channels" }, wantErr: "unknown kind"},
		{name: "missing appid", mutate: func(c *Config) { c.Tenants[0].AppID = "" }, wantErr: "app_id is required"},
		{name: "missing secret", mutate: func(c *Config) { c.Tenants[0].Secret = "" }, wantErr: "secret or secret_ref"},
		{name: "slash in id", mutate: func(c *Config) { c.Tenants[0].ID = "a/b" }, wantErr: "must not contain"},
		{
			name: "work without corpid",
			mutate: func(c *Config) {
				c.Tenants[0] = TenantConfig{ID: "w", Kind: KindWork, Secret: "s"}
			},
			wantErr: "corp_id is required",
		},
		{
			name: "duplicate id",
			mutate: func(c *Config) {
				c.Tenants = append(c.Tenants, c.Tenants[0])
			},
			wantErr: "duplicate id",
		},
		{
			name: "secret_ref without region",
			mutate: func(c *Config) {
				c.Tenants[0].Secret = ""
				c.Tenants[0].SecretRef = "prod/mp"
			},
			wantErr: "aws.region",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
