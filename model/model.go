package model

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// Regressor 是批量预测阶段的最小抽象：输入变换后的特征矩阵，输出每行一个预测值。
// 具体实现可以是本地模型（线性模型/树模型）或远程 RPC 模型服务。
type Regressor interface {
	Name() string
	Predict(ctx context.Context, x mat.Matrix) ([]float64, error)
}
