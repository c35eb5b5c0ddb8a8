package model

import (
	"context"
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/rushteam/insurekit/core"
)

// LinearModel 实现了线性回归模型。
//
// 预测原理：y = Intercept + sum(Coef_i * x_i)
type LinearModel struct {
	Coef      []float64 // 系数，与特征列一一对应
	Intercept float64   // 截距
}

func init() {
	Register(KindLinear, buildLinear)
}

func buildLinear(raw json.RawMessage, _ BuildOptions) (Regressor, error) {
	var m struct {
		Coef      []float64 `json:"coef"`
		Intercept float64   `json:"intercept"`
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, core.WrapError(core.ModuleModel, core.ErrorCodeInvalidInput, "model: parse linear model", err)
	}
	if len(m.Coef) == 0 {
		return nil, invalidModel("linear model has no coefficients")
	}
	return &LinearModel{Coef: m.Coef, Intercept: m.Intercept}, nil
}

func (m *LinearModel) Name() string { return KindLinear }

func (m *LinearModel) Predict(ctx context.Context, x mat.Matrix) ([]float64, error) {
	rows, cols := x.Dims()
	if cols != len(m.Coef) {
		return nil, invalidModel(fmt.Sprintf("linear model expects %d features, got %d", len(m.Coef), cols))
	}
	var out mat.VecDense
	out.MulVec(x, mat.NewVecDense(len(m.Coef), m.Coef))

	preds := make([]float64, rows)
	for i := range preds {
		preds[i] = out.AtVec(i) + m.Intercept
	}
	return preds, nil
}
