package predict

import (
	"time"

	"go.uber.org/zap"

	"github.com/rushteam/insurekit/feature"
	"github.com/rushteam/insurekit/metrics"
	"github.com/rushteam/insurekit/model"
)

// 默认配置
const (
	DefaultPredictionDir    = "prediction"
	DefaultPredictionColumn = "prediction"
	DefaultChunkSize        = 0
	DefaultConcurrency      = 1
)

// DefaultMissingTokens 是输入 CSV 中额外视为缺失值的字符串
var DefaultMissingTokens = []string{"na"}

// Options 是 BatchPredictor 的配置
type Options struct {
	// PredictionDir 预测结果输出目录，不存在时自动创建
	PredictionDir string
	// PredictionColumn 预测结果列名
	PredictionColumn string
	// MissingTokens 额外的缺失值标记
	MissingTokens []string
	// Filter CEL 行过滤表达式，为空表示不过滤
	Filter string
	// EncoderMode 类别列编码模式：refit / fitted / auto
	EncoderMode string
	// ChunkSize 每次送入模型的行数，<= 0 表示一次性预测
	ChunkSize int
	// Concurrency 同时预测的分块数
	Concurrency int

	Logger  *zap.Logger
	Metrics *metrics.BatchMetrics
	Now     func() time.Time

	TransformerLoader feature.TransformerLoader
	EncoderLoader     feature.EncoderLoader
	ModelLoader       model.Loader
}

// Option 修改 Options
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		PredictionDir:     DefaultPredictionDir,
		PredictionColumn:  DefaultPredictionColumn,
		MissingTokens:     DefaultMissingTokens,
		EncoderMode:       feature.EncoderRefit,
		ChunkSize:         DefaultChunkSize,
		Concurrency:       DefaultConcurrency,
		Logger:            zap.NewNop(),
		Now:               time.Now,
		TransformerLoader: feature.NewFileTransformerLoader(),
		EncoderLoader:     feature.NewFileEncoderLoader(),
		ModelLoader:       model.NewFileLoader(),
	}
}

// WithPredictionDir 设置输出目录
func WithPredictionDir(dir string) Option {
	return func(o *Options) {
		if dir != "" {
			o.PredictionDir = dir
		}
	}
}

// WithPredictionColumn 设置预测结果列名
func WithPredictionColumn(name string) Option {
	return func(o *Options) {
		if name != "" {
			o.PredictionColumn = name
		}
	}
}

// WithMissingTokens 设置缺失值标记（替换默认的 "na"）
func WithMissingTokens(tokens []string) Option {
	return func(o *Options) { o.MissingTokens = tokens }
}

// WithFilter 设置 CEL 行过滤表达式
func WithFilter(expr string) Option {
	return func(o *Options) { o.Filter = expr }
}

// WithEncoderMode 设置类别列编码模式
func WithEncoderMode(mode string) Option {
	return func(o *Options) {
		if mode != "" {
			o.EncoderMode = mode
		}
	}
}

// WithChunking 设置分块大小与并发数
func WithChunking(chunkSize, concurrency int) Option {
	return func(o *Options) {
		o.ChunkSize = chunkSize
		if concurrency > 0 {
			o.Concurrency = concurrency
		}
	}
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.BatchMetrics) Option {
	return func(o *Options) { o.Metrics = m }
}

// WithClock 设置时钟（输出文件名中的时间戳来自这里）
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Now = now
		}
	}
}

// WithLoaders 替换产物加载器，nil 表示保留默认的本地文件加载器
func WithLoaders(t feature.TransformerLoader, e feature.EncoderLoader, m model.Loader) Option {
	return func(o *Options) {
		if t != nil {
			o.TransformerLoader = t
		}
		if e != nil {
			o.EncoderLoader = e
		}
		if m != nil {
			o.ModelLoader = m
		}
	}
}
