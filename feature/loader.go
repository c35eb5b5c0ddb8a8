package feature

import (
	"context"
)

// TransformerLoader 特征变换器加载器接口
// source 是数据源标识（文件路径等），便于在测试中注入内存实现
type TransformerLoader interface {
	Load(ctx context.Context, source string) (*Transformer, error)
}

// EncoderLoader target encoder 加载器接口
type EncoderLoader interface {
	Load(ctx context.Context, source string) (*LabelEncoder, error)
}

// FileTransformerLoader 本地文件特征变换器加载器
type FileTransformerLoader struct{}

// NewFileTransformerLoader 创建本地文件特征变换器加载器
func NewFileTransformerLoader() *FileTransformerLoader {
	return &FileTransformerLoader{}
}

// Load 从本地文件加载特征变换器
func (l *FileTransformerLoader) Load(ctx context.Context, filePath string) (*Transformer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadTransformerFromFile(filePath)
}

// FileEncoderLoader 本地文件 target encoder 加载器
type FileEncoderLoader struct{}

// NewFileEncoderLoader 创建本地文件 target encoder 加载器
func NewFileEncoderLoader() *FileEncoderLoader {
	return &FileEncoderLoader{}
}

// Load 从本地文件加载 target encoder
func (l *FileEncoderLoader) Load(ctx context.Context, filePath string) (*LabelEncoder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadLabelEncoderFromFile(filePath)
}

var (
	_ TransformerLoader = (*FileTransformerLoader)(nil)
	_ EncoderLoader     = (*FileEncoderLoader)(nil)
)
