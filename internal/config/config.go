// Package config 组装服务配置：base.yaml + <env>.yaml + secrets.env + 环境变量
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	pkgconfig "careerhub/pkg/config"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	Server    pkgconfig.ServerConfig `yaml:"server"`
	Log       LogConfig              `yaml:"log"`
	Storage   StorageConfig          `yaml:"storage"`
	DB        pkgconfig.DBConfig     `yaml:"db"`
	Redis     pkgconfig.RedisConfig  `yaml:"redis"`
	MQ        pkgconfig.MQConfig     `yaml:"mq"`
	JWT       pkgconfig.JWTConfig    `yaml:"jwt"`
	OTel      pkgconfig.OTelConfig   `yaml:"otel"`
	SMTP      pkgconfig.SMTPConfig   `yaml:"smtp"`
	Payments  PaymentsConfig         `yaml:"payments"`
	Tiers     TiersConfig            `yaml:"tiers"`
	RateLimit RateLimitConfig        `yaml:"ratelimit"`
	Outbox    OutboxConfig           `yaml:"outbox"`
}

type LogConfig struct {
	Mode  string `yaml:"mode"`
	Level string `yaml:"level"`
}

type StorageConfig struct {
	// Driver postgres | memory
	Driver string `yaml:"driver"`
}

type PaymentsConfig struct {
	GatewayTimeout time.Duration `yaml:"gateway_timeout"`
	// Fake 使用内存网关，仅用于本地开发
	Fake   bool         `yaml:"fake"`
	Stripe StripeConfig `yaml:"stripe"`
	Yoco   YocoConfig   `yaml:"yoco"`
}

type StripeConfig struct {
	APIURL        string   `yaml:"api_url"`
	WebhookSecret string   `yaml:"webhook_secret"`
	Currencies    []string `yaml:"currencies"`
}

type YocoConfig struct {
	BaseURL       string `yaml:"base_url"`
	WebhookSecret string `yaml:"webhook_secret"`
}

// TiersConfig 功能门槛：gate 名称 -> 允许的订阅等级
type TiersConfig struct {
	Gates map[string][]string `yaml:"gates"`
}

type RateLimitConfig struct {
	ProposalsPerWindow int           `yaml:"proposals_per_window"`
	Window             time.Duration `yaml:"window"`
}

type OutboxConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
	MaxRetries int           `yaml:"max_retries"`
}

// Load 读取 CONFIG_ENV 对应的配置
func Load(configDir string) (*Config, error) {
	return LoadEnv(pkgconfig.GetConfigEnv(), configDir)
}

func LoadEnv(env, configDir string) (*Config, error) {
	raw, err := pkgconfig.LoadConfig(env, configDir)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := pkgconfig.Decode(raw, &cfg); err != nil {
		return nil, err
	}

	pkgconfig.OverrideServerFromEnv(&cfg.Server)
	pkgconfig.OverrideDBFromEnv(&cfg.DB)
	pkgconfig.OverrideRedisFromEnv(&cfg.Redis)
	pkgconfig.OverrideMQFromEnv(&cfg.MQ)
	pkgconfig.OverrideJWTFromEnv(&cfg.JWT)
	pkgconfig.OverrideOTelFromEnv(&cfg.OTel)
	pkgconfig.OverrideSMTPFromEnv(&cfg.SMTP)
	overrideFromEnv(&cfg)

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func overrideFromEnv(cfg *Config) {
	if driver := os.Getenv("STORAGE_DRIVER"); driver != "" {
		cfg.Storage.Driver = driver
	}
	if secret := os.Getenv("STRIPE_WEBHOOK_SECRET"); secret != "" {
		cfg.Payments.Stripe.WebhookSecret = secret
	}
	if secret := os.Getenv("YOCO_WEBHOOK_SECRET"); secret != "" {
		cfg.Payments.Yoco.WebhookSecret = secret
	}
	if fake := os.Getenv("PAYMENTS_FAKE"); fake != "" {
		if b, err := strconv.ParseBool(fake); err == nil {
			cfg.Payments.Fake = b
		}
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = StoragePostgres
	}
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	if c.JWT.TTL == 0 {
		c.JWT.TTL = 24 * time.Hour
	}
	if c.Payments.GatewayTimeout == 0 {
		c.Payments.GatewayTimeout = 15 * time.Second
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = time.Minute
	}
	if c.RateLimit.ProposalsPerWindow == 0 {
		c.RateLimit.ProposalsPerWindow = 10
	}
	if c.Outbox.Interval == 0 {
		c.Outbox.Interval = time.Second
	}
	if c.Outbox.BatchSize == 0 {
		c.Outbox.BatchSize = 100
	}
	if c.Outbox.MaxRetries == 0 {
		c.Outbox.MaxRetries = 5
	}
	if c.MQ.MaxRetries == 0 {
		c.MQ.MaxRetries = 3
	}
}

func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	switch c.Storage.Driver {
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.MQ.Enabled && c.MQ.URL == "" {
		return fmt.Errorf("mq.url is required when mq is enabled")
	}
	return nil
}
