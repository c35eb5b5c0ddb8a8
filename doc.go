// Package insurekit 是保险费用模型的批量预测工具包。
//
// 设计要点：
// - 模型仓库（saved_models/<version>）中最大的版本即最新模型，可选地由 Redis latest 指针覆盖
// - 预测顺序固定：target encoder → transformer → model
// - 产物（transformer / target encoder / model）均为 JSON，模型类型可通过 model.Register 扩展
package insurekit

import (
	"github.com/rushteam/insurekit/predict"
	"github.com/rushteam/insurekit/registry"
)

// 轻量 facade：便于用户直接 import "insurekit" 使用核心抽象。
type BatchPredictor = predict.BatchPredictor
type Resolver = registry.Resolver

// NewBatchPredictor 基于本地模型仓库 registryDir 创建批量预测器
func NewBatchPredictor(registryDir string, opts ...predict.Option) (*BatchPredictor, error) {
	return predict.New(registry.NewModelResolver(registryDir), opts...)
}
