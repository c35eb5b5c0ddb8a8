// Package config 加载 insurekit 的 YAML 配置。
//
// 配置文件中的 ${VAR} 会先按环境变量展开，解码后补全默认值并校验。
// 命令行参数可以覆盖配置文件中的值（见 cmd/insurekit）。
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rushteam/insurekit/docstore"
	"github.com/rushteam/insurekit/feature"
	"github.com/rushteam/insurekit/predict"
	"github.com/rushteam/insurekit/registry"
)

// MongoURIEnv 未在配置中指定 datadump.uri 时读取的环境变量
const MongoURIEnv = "INSUREKIT_MONGO_URI"

// 模型仓库后端
const (
	BackendFS    = "fs"
	BackendRedis = "redis"
)

// DefaultKeyPrefix 是 Redis 中 latest 指针的默认 key 前缀
const DefaultKeyPrefix = "insurekit:"

// Config 是 insurekit 的完整配置
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Registry   RegistryConfig   `yaml:"registry"`
	Prediction PredictionConfig `yaml:"prediction"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	DataDump   DataDumpConfig   `yaml:"datadump"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// RegistryConfig 模型仓库配置。backend 为 redis 时 latest 版本号从 Redis 读取，产物仍在 dir 下。
type RegistryConfig struct {
	Dir     string      `yaml:"dir"`
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	Timeout   time.Duration `yaml:"timeout"`
}

// PointerKey 返回 latest 指针的 key
func (c RedisConfig) PointerKey() string {
	return c.KeyPrefix + "latest"
}

type PredictionConfig struct {
	Dir           string   `yaml:"dir"`
	MissingTokens []string `yaml:"missing_tokens"`
	Filter        string   `yaml:"filter"`
	EncoderMode   string   `yaml:"encoder_mode"`
	ChunkSize     int      `yaml:"chunk_size"`
	Concurrency   int      `yaml:"concurrency"`
}

type MetricsConfig struct {
	// Textfile 非空时，每次运行结束把指标写到该文件
	Textfile string `yaml:"textfile"`
}

type DataDumpConfig struct {
	URI        string        `yaml:"uri"`
	Database   string        `yaml:"database"`
	Collection string        `yaml:"collection"`
	BatchSize  int           `yaml:"batch_size"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Default 返回全部使用默认值的配置
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load 从 path 加载配置；path 为空时返回默认配置。
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse 解析 YAML 内容。未知字段视为错误。
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Registry.Dir == "" {
		c.Registry.Dir = registry.DefaultRegistryDir
	}
	if c.Registry.Backend == "" {
		c.Registry.Backend = BackendFS
	}
	if c.Registry.Redis.KeyPrefix == "" {
		c.Registry.Redis.KeyPrefix = DefaultKeyPrefix
	}
	if c.Registry.Redis.Timeout <= 0 {
		c.Registry.Redis.Timeout = 3 * time.Second
	}
	if c.Prediction.Dir == "" {
		c.Prediction.Dir = predict.DefaultPredictionDir
	}
	if c.Prediction.MissingTokens == nil {
		c.Prediction.MissingTokens = predict.DefaultMissingTokens
	}
	if c.Prediction.EncoderMode == "" {
		c.Prediction.EncoderMode = feature.EncoderRefit
	}
	if c.Prediction.Concurrency <= 0 {
		c.Prediction.Concurrency = predict.DefaultConcurrency
	}
	if c.DataDump.URI == "" {
		c.DataDump.URI = os.Getenv(MongoURIEnv)
	}
	if c.DataDump.Database == "" {
		c.DataDump.Database = docstore.DefaultDatabase
	}
	if c.DataDump.Collection == "" {
		c.DataDump.Collection = docstore.DefaultCollection
	}
	if c.DataDump.BatchSize <= 0 {
		c.DataDump.BatchSize = docstore.DefaultBatchSize
	}
	if c.DataDump.Timeout <= 0 {
		c.DataDump.Timeout = 10 * time.Second
	}
}

// Validate 校验配置。datadump.uri 只在执行 datadump 时检查。
func (c *Config) Validate() error {
	if _, err := zap.ParseAtomicLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Registry.Backend {
	case BackendFS:
	case BackendRedis:
		if c.Registry.Redis.Addr == "" {
			return errors.New("registry.redis.addr is required when backend is redis")
		}
	default:
		return fmt.Errorf("registry.backend: unsupported %q (want %s or %s)", c.Registry.Backend, BackendFS, BackendRedis)
	}
	switch c.Prediction.EncoderMode {
	case feature.EncoderRefit, feature.EncoderFitted, feature.EncoderAuto:
	default:
		return fmt.Errorf("prediction.encoder_mode: unsupported %q", c.Prediction.EncoderMode)
	}
	if c.Prediction.ChunkSize < 0 {
		return fmt.Errorf("prediction.chunk_size must be >= 0, got %d", c.Prediction.ChunkSize)
	}
	return nil
}

// PredictOptions 把预测相关配置转换为 predict.Option
func (c *Config) PredictOptions() []predict.Option {
	return []predict.Option{
		predict.WithPredictionDir(c.Prediction.Dir),
		predict.WithMissingTokens(c.Prediction.MissingTokens),
		predict.WithFilter(c.Prediction.Filter),
		predict.WithEncoderMode(c.Prediction.EncoderMode),
		predict.WithChunking(c.Prediction.ChunkSize, c.Prediction.Concurrency),
	}
}

// DumpOptions 把导入配置转换为 docstore.DumpOptions
func (c *Config) DumpOptions(logger *zap.Logger) docstore.DumpOptions {
	return docstore.DumpOptions{
		Database:   c.DataDump.Database,
		Collection: c.DataDump.Collection,
		BatchSize:  c.DataDump.BatchSize,
		Logger:     logger,
	}
}
