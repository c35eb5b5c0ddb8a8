package model

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/rushteam/insurekit/core"
)

func TestLinearModel_Predict(t *testing.T) {
	m, err := Parse([]byte(`{"kind": "linear", "coef": [2, -1], "intercept": 10}`), BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, KindLinear, m.Name())

	x := mat.NewDense(2, 2, []float64{1, 1, 3, 0.5})
	preds, err := m.Predict(context.Background(), x)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{11, 15.5}, preds, 1e-9)

	_, err = m.Predict(context.Background(), mat.NewDense(1, 3, nil))
	assert.True(t, core.IsInvalidInput(err))
}

const xgbModel = `{
  "kind": "xgboost",
  "base_score": 100,
  "trees": [
    {"nodeid": 0, "split": "smoker", "split_condition": 0.5, "yes": 1, "no": 2, "missing": 1,
     "children": [
       {"nodeid": 1, "split": "f0", "split_condition": 40, "yes": 3, "no": 4, "missing": 3,
        "children": [{"nodeid": 3, "leaf": 10}, {"nodeid": 4, "leaf": 20}]},
       {"nodeid": 2, "leaf": 300}
     ]},
    {"nodeid": 0, "leaf": -1}
  ]
}`

func TestTreeEnsemble_Predict(t *testing.T) {
	m, err := Parse([]byte(xgbModel), BuildOptions{FeatureNames: []string{"age", "smoker"}})
	require.NoError(t, err)

	x := mat.NewDense(4, 2, []float64{
		30, 0,
		50, 0,
		30, 1,
		math.NaN(), math.NaN(),
	})
	preds, err := m.Predict(context.Background(), x)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{109, 119, 399, 109}, preds, 1e-9)
}

func TestTreeEnsemble_Logistic(t *testing.T) {
	m, err := Parse([]byte(`{"kind": "xgboost", "objective": "binary:logistic", "base_score": 0.5,
	  "trees": [{"nodeid": 0, "leaf": 0}]}`), BuildOptions{})
	require.NoError(t, err)

	preds, err := m.Predict(context.Background(), mat.NewDense(1, 1, []float64{3}))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, preds[0], 1e-9)
}

func TestTreeEnsemble_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "no trees", data: `{"kind": "xgboost", "trees": []}`},
		{name: "unknown feature", data: `{"kind": "xgboost", "trees": [{"nodeid": 0, "split": "bmi", "yes": 1, "no": 2, "missing": 1, "children": [{"nodeid": 1, "leaf": 1}, {"nodeid": 2, "leaf": 2}]}]}`},
		{name: "dangling child", data: `{"kind": "xgboost", "trees": [{"nodeid": 0, "split": "f0", "yes": 1, "no": 5, "missing": 1, "children": [{"nodeid": 1, "leaf": 1}]}]}`},
		{name: "cycle", data: `{"kind": "xgboost", "trees": [{"nodeid": 0, "split": "f0", "yes": 1, "no": 1, "missing": 1, "children": [{"nodeid": 1, "split": "f0", "yes": 1, "no": 1, "missing": 1}]}]}`},
		{name: "objective", data: `{"kind": "xgboost", "objective": "multi:softmax", "trees": [{"nodeid": 0, "leaf": 1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), BuildOptions{FeatureNames: []string{"age"}})
			require.Error(t, err)
			assert.True(t, core.IsInvalidInput(err), "got %v", err)
		})
	}
}

func TestRPCModel_Predict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Instances [][]float64 `json:"instances"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		preds := make([]float64, len(req.Instances))
		for i, row := range req.Instances {
			preds[i] = row[0] * 2
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"predictions": preds})
	}))
	defer server.Close()

	m, err := Parse([]byte(`{"kind": "rpc", "endpoint": "`+server.URL+`", "timeout": "2s"}`), BuildOptions{})
	require.NoError(t, err)

	preds, err := m.Predict(context.Background(), mat.NewDense(2, 1, []float64{1, 2}))
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4}, preds)
}

func TestRPCModel_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/short" {
			_, _ = w.Write([]byte(`{"predictions": [1]}`))
			return
		}
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	x := mat.NewDense(2, 1, []float64{1, 2})

	_, err := NewRPCModel(server.URL+"/down", 0).Predict(context.Background(), x)
	require.Error(t, err)
	assert.True(t, core.IsUnavailable(err))

	_, err = NewRPCModel(server.URL+"/short", 0).Predict(context.Background(), x)
	assert.ErrorContains(t, err, "mismatch")
}

func TestBuild_UnsupportedKind(t *testing.T) {
	_, err := Parse([]byte(`{"kind": "catboost"}`), BuildOptions{})
	require.Error(t, err)
	assert.True(t, core.IsNotSupported(err))
	assert.Contains(t, err.Error(), "linear")

	_, err = Parse([]byte(`{}`), BuildOptions{})
	assert.True(t, core.IsInvalidInput(err))
}

func TestRegister_Custom(t *testing.T) {
	Register("constant", func(raw json.RawMessage, _ BuildOptions) (Regressor, error) {
		return &LinearModel{Coef: []float64{0}, Intercept: 42}, nil
	})
	assert.Contains(t, SupportedKinds(), "constant")

	m, err := Parse([]byte(`{"kind": "constant"}`), BuildOptions{})
	require.NoError(t, err)
	preds, err := m.Predict(context.Background(), mat.NewDense(1, 1, []float64{7}))
	require.NoError(t, err)
	assert.Equal(t, []float64{42}, preds)
}

func TestFileLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"kind": "linear", "coef": [1]}`), 0o644))

	m, err := NewFileLoader().Load(context.Background(), path, BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, KindLinear, m.Name())

	_, err = NewFileLoader().Load(context.Background(), path+".missing", BuildOptions{})
	assert.True(t, core.IsNotFound(err))
}
