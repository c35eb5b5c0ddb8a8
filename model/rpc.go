package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/rushteam/insurekit/core"
)

// RPCModel 是通过 HTTP 调用外部模型服务的 Regressor 实现。
// 适用于模型本身无法导出为本地格式的情况（如 sklearn pipeline 部署在 Python 服务里）。
type RPCModel struct {
	Endpoint string // 例如 "http://localhost:8080/predict"
	Timeout  time.Duration
	Client   *http.Client
}

func init() {
	Register(KindRPC, buildRPC)
}

func buildRPC(raw json.RawMessage, _ BuildOptions) (Regressor, error) {
	var m struct {
		Endpoint string `json:"endpoint"`
		Timeout  string `json:"timeout"`
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, core.WrapError(core.ModuleModel, core.ErrorCodeInvalidInput, "model: parse rpc model", err)
	}
	if m.Endpoint == "" {
		return nil, invalidModel("rpc model has no endpoint")
	}
	var timeout time.Duration
	if m.Timeout != "" {
		d, err := time.ParseDuration(m.Timeout)
		if err != nil {
			return nil, core.WrapError(core.ModuleModel, core.ErrorCodeInvalidInput, "model: rpc timeout", err)
		}
		timeout = d
	}
	return NewRPCModel(m.Endpoint, timeout), nil
}

func NewRPCModel(endpoint string, timeout time.Duration) *RPCModel {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &RPCModel{
		Endpoint: endpoint,
		Timeout:  timeout,
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (m *RPCModel) Name() string { return KindRPC }

// Predict 调用远程模型服务进行批量预测。
// 请求格式（JSON）：
//
//	{"instances": [[0.15, 1, 0.08, ...], ...]}
//
// 响应格式（JSON）：
//
//	{"predictions": [1725.55, 4449.46, ...]}
func (m *RPCModel) Predict(ctx context.Context, x mat.Matrix) ([]float64, error) {
	if m.Client == nil {
		m.Client = &http.Client{Timeout: m.Timeout}
	}

	rows, cols := x.Dims()
	if rows == 0 {
		return []float64{}, nil
	}

	instances := make([][]float64, rows)
	for i := range instances {
		instances[i] = mat.Row(make([]float64, cols), i, x)
	}
	jsonData, err := json.Marshal(map[string]any{"instances": instances})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.Client.Do(req)
	if err != nil {
		return nil, core.WrapError(core.ModuleModel, core.ErrorCodeUnavailable, "model: rpc call "+m.Endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			return nil, fmt.Errorf("rpc error: status=%d, read body failed: %w", resp.StatusCode, err)
		}
		return nil, core.NewDomainError(core.ModuleModel, core.ErrorCodeUnavailable,
			fmt.Sprintf("model: rpc error: status=%d, body=%s", resp.StatusCode, string(body)))
	}

	var result struct {
		Predictions []float64 `json:"predictions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(result.Predictions) != rows {
		return nil, fmt.Errorf("response predictions count mismatch: expected %d, got %d", rows, len(result.Predictions))
	}
	return result.Predictions, nil
}
