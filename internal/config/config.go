package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config 服务配置
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	MySQL   MySQLConfig   `mapstructure:"mysql"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Trade   TradeConfig   `mapstructure:"trade"`
	Outbox  OutboxConfig  `mapstructure:"outbox"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	WorkerID        int64         `mapstructure:"worker_id"` // 雪花算法机器ID，多实例需不同
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig driver 取值 mysql / memory
//
// memory 模式下 Kafka、Redis 均不连接，seed 中的会员与商品作为目录数据。
type StorageConfig struct {
	Driver string     `mapstructure:"driver"`
	Seed   SeedConfig `mapstructure:"seed"`
}

type SeedConfig struct {
	Members []int64          `mapstructure:"members"`
	Items   []int64          `mapstructure:"items"`
	Points  map[string]int64 `mapstructure:"points"` // 会员ID -> 初始积分
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	TradeExecuted string `mapstructure:"trade_executed"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// TradeConfig lock_backend 取值 redis / local
type TradeConfig struct {
	CommitTimeout     time.Duration `mapstructure:"commit_timeout"`
	LockBackend       string        `mapstructure:"lock_backend"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
	LockRetryInterval time.Duration `mapstructure:"lock_retry_interval"`
	LockMaxRetries    int           `mapstructure:"lock_max_retries"`
}

type OutboxConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	BatchSize       int           `mapstructure:"batch_size"`
	MaxRetryCount   int           `mapstructure:"max_retry_count"`
	Retention       time.Duration `mapstructure:"retention"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type CatalogConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const envPrefix = "STOCKLEDGER"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.worker_id", 1)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("storage.driver", "mysql")

	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.log_level", "warn")

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("kafka.topic.trade_executed", "trade_executed")

	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("trade.commit_timeout", 5*time.Second)
	v.SetDefault("trade.lock_backend", "redis")
	v.SetDefault("trade.lock_ttl", 10*time.Second)
	v.SetDefault("trade.lock_retry_interval", 50*time.Millisecond)
	v.SetDefault("trade.lock_max_retries", 60)

	v.SetDefault("outbox.poll_interval", 5*time.Second)
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.max_retry_count", 5)
	v.SetDefault("outbox.retention", 7*24*time.Hour)
	v.SetDefault("outbox.cleanup_interval", time.Hour)

	v.SetDefault("catalog.cache_ttl", 5*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load 读取配置文件，.env 与 STOCKLEDGER_ 前缀的环境变量可覆盖任意配置项
func Load(configPath string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig 加载配置，失败直接退出
func LoadConfig(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}
	return cfg
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "mysql", "memory":
	default:
		return fmt.Errorf("storage.driver 不支持: %q", c.Storage.Driver)
	}
	switch c.Trade.LockBackend {
	case "redis", "local":
	default:
		return fmt.Errorf("trade.lock_backend 不支持: %q", c.Trade.LockBackend)
	}
	if c.Storage.Driver == "memory" && c.Trade.LockBackend == "redis" {
		return fmt.Errorf("memory 存储只能配合 local 锁")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret 不能为空")
	}
	for member := range c.Storage.Seed.Points {
		if _, err := strconv.ParseInt(member, 10, 64); err != nil {
			return fmt.Errorf("storage.seed.points 会员ID不合法: %q", member)
		}
	}
	if c.Trade.CommitTimeout <= 0 {
		return fmt.Errorf("trade.commit_timeout 必须大于 0")
	}
	return nil
}
