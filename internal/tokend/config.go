// Package tokend 凭证中控服务：为多个公众号、企业微信应用、小程序统一维护
// access_token 与 ticket，通过 HTTP 向内部服务下发，并在刷新后广播事件。
package tokend

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 WECHATKIT_REDIS_ADDR 覆盖 redis.addr
const EnvPrefix = "WECHATKIT"

// 租户类型
const (
	KindOfficialAccount = "officialaccount"
	KindWork            = "work"
	KindMiniProgram     = "miniprogram"
)

// Config 服务配置
type Config struct {
	Listen  string         `mapstructure:"listen"`
	APIKeys []string       `mapstructure:"api_keys"`
	Log     LogConfig      `mapstructure:"log"`
	Redis   RedisConfig    `mapstructure:"redis"`
	NATS    NATSConfig     `mapstructure:"nats"`
	AWS     AWSConfig      `mapstructure:"aws"`
	Warmup  WarmupConfig   `mapstructure:"warmup"`
	Tenants []TenantConfig `mapstructure:"tenants"`
}

type LogConfig struct {
	Env   string `mapstructure:"env"`   // dev 使用彩色控制台输出，其余为 JSON
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// RedisConfig Addr 为空时使用进程内缓存
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
	Prefix   string `mapstructure:"prefix"`
}

// NATSConfig URL 为空时不广播刷新事件
type NATSConfig struct {
	URL          string `mapstructure:"url"`
	Subject      string `mapstructure:"subject"`
	IncludeValue bool   `mapstructure:"include_value"`
}

type AWSConfig struct {
	Region string `mapstructure:"region"`
}

// WarmupConfig Schedule 为空时不启动预热
type WarmupConfig struct {
	Schedule string        `mapstructure:"schedule"`
	Margin   time.Duration `mapstructure:"margin"`
}

// TenantConfig 单个租户
//
// Secret 与 SecretRef 二选一；SecretRef 指向 AWS Secrets Manager，
// 形如 "name" 或 "name#field"（密钥为 JSON 对象时取 field）。
type TenantConfig struct {
	ID        string `mapstructure:"id"`
	Kind      string `mapstructure:"kind"`
	AppID     string `mapstructure:"app_id"`
	Secret    string `mapstructure:"secret"`
	SecretRef string `mapstructure:"secret_ref"`
	CorpID    string `mapstructure:"corp_id"`
	AgentID   int64  `mapstructure:"agent_id"`
	BaseURL   string `mapstructure:"base_url"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("api_keys", []string{})
	v.SetDefault("log.env", "prod")
	v.SetDefault("log.level", "info")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.prefix", "")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "wechatkit.credential.updated")
	v.SetDefault("nats.include_value", false)
	v.SetDefault("aws.region", "")
	v.SetDefault("warmup.schedule", "@every 1m")
	v.SetDefault("warmup.margin", 10*time.Minute)
}

// LoadConfig 读取配置：默认值 < 配置文件 < 环境变量（含 .env）
// path 为空时只使用默认值与环境变量。
func LoadConfig(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	// .env 不存在时静默忽略
	_ = godotenv.Load()

	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置
func (cfg *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(cfg.Listen) == "" {
		errs = append(errs, errors.New("listen is required"))
	}
	if cfg.Warmup.Margin < 0 {
		errs = append(errs, errors.New("warmup.margin must not be negative"))
	}
	if cfg.Warmup.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Warmup.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("warmup.schedule: %w", err))
		}
	}
	if len(cfg.Tenants) == 0 {
		errs = append(errs, errors.New("at least one tenant is required"))
	}

	seen := make(map[string]bool, len(cfg.Tenants))
	for i, tc := range cfg.Tenants {
		if err := tc.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("tenants[%d]: %w", i, err))
			continue
		}
		if seen[tc.ID] {
			errs = append(errs, fmt.Errorf("tenants[%d]: duplicate id %q", i, tc.ID))
		}
		seen[tc.ID] = true
		if tc.SecretRef != "" && tc.Secret == "" && cfg.AWS.Region == "" {
			errs = append(errs, fmt.Errorf("tenants[%d]: secret_ref requires aws.region", i))
		}
	}
	return errors.Join(errs...)
}

// Validate 校验租户配置
func (tc TenantConfig) Validate() error {
	if strings.TrimSpace(tc.ID) == "" {
		return errors.New("id is required")
	}
	if strings.ContainsAny(tc.ID, "/ ") {
		return fmt.Errorf("id %q must not contain '/' or spaces", tc.ID)
	}
	switch tc.Kind {
	case KindOfficialAccount, KindMiniProgram:
		if tc.AppID == "" {
			return fmt.Errorf("%s tenant %s: app_id is required", tc.Kind, tc.ID)
		}
	case KindWork:
		if tc.CorpID == "" {
			return fmt.Errorf("work tenant %s: corp_id is required", tc.ID)
		}
		if tc.AgentID < 0 {
			return fmt.Errorf("work tenant %s: agent_id must not be negative", tc.ID)
		}
	default:
		return fmt.Errorf("tenant %s: unknown kind %q", tc.ID, tc.Kind)
	}
	if tc.Secret == "" && tc.SecretRef == "" {
		return fmt.Errorf("tenant %s: secret or secret_ref is required", tc.ID)
	}
	return nil
}
