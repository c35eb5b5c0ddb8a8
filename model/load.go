package model

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rushteam/insurekit/core"
)

// Loader 模型加载器接口，source 是数据源标识（文件路径等）
type Loader interface {
	Load(ctx context.Context, source string, opts BuildOptions) (Regressor, error)
}

// FileLoader 从本地 model.json 加载模型
type FileLoader struct{}

// NewFileLoader 创建本地文件模型加载器
func NewFileLoader() *FileLoader {
	return &FileLoader{}
}

// Load 读取 model.json，按 kind 字段分派给已注册的 Builder
func (l *FileLoader) Load(ctx context.Context, path string, opts BuildOptions) (Regressor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.WrapError(core.ModuleModel, core.ErrorCodeNotFound, "model: read "+path, err)
	}
	return Parse(data, opts)
}

// Parse 解析 model.json 内容
func Parse(data []byte, opts BuildOptions) (Regressor, error) {
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, core.WrapError(core.ModuleModel, core.ErrorCodeInvalidInput, "model: parse model", err)
	}
	if head.Kind == "" {
		return nil, invalidModel("model artifact has no kind")
	}
	return Build(head.Kind, data, opts)
}

var _ Loader = (*FileLoader)(nil)
