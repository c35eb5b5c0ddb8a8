package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/rushteam/insurekit/core"
)

// 内置模型类型
const (
	KindLinear  = "linear"
	KindXGBoost = "xgboost"
	KindRPC     = "rpc"
)

// BuildOptions 是构建模型时可用的上下文信息
type BuildOptions struct {
	// FeatureNames 变换器的输入列（按顺序），用于解析树模型中按名称引用的特征
	FeatureNames []string
}

// Builder 根据 model.json 的原始内容构建 Regressor。
// 各模型在 init 中调用 Register(kind, builder) 即可被 Load 识别。
type Builder func(raw json.RawMessage, opts BuildOptions) (Regressor, error)

var (
	builders   = make(map[string]Builder)
	buildersMu sync.RWMutex
)

// Register 注册一种模型的构建逻辑，重复注册时后者覆盖前者。
func Register(kind string, builder Builder) {
	if kind == "" || builder == nil {
		return
	}
	buildersMu.Lock()
	defer buildersMu.Unlock()
	builders[kind] = builder
}

// SupportedKinds 返回当前已注册的模型类型列表（排序），用于错误提示与校验。
func SupportedKinds() []string {
	buildersMu.RLock()
	defer buildersMu.RUnlock()
	kinds := make([]string, 0, len(builders))
	for k := range builders {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build 根据 kind 构建模型；未注册的 kind 返回包含已支持列表的错误。
func Build(kind string, raw json.RawMessage, opts BuildOptions) (Regressor, error) {
	buildersMu.RLock()
	builder, ok := builders[kind]
	buildersMu.RUnlock()
	if !ok {
		return nil, core.NewDomainError(core.ModuleModel, core.ErrorCodeNotSupported,
			fmt.Sprintf("model: unsupported model kind %q (supported: %v)", kind, SupportedKinds()))
	}
	return builder(raw, opts)
}

func invalidModel(msg string) error {
	return core.NewDomainError(core.ModuleModel, core.ErrorCodeInvalidInput, "model: "+msg)
}
