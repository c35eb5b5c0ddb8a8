package feature

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/rushteam/insurekit/core"
	"github.com/rushteam/insurekit/dataset"
)

// Transformer 是训练阶段拟合好的特征变换器（缺失值填充 + 缩放），对应 transformer.json。
//
// 文件格式：
//
//	{
//	  "feature_names_in": ["age", "sex", "bmi", "children", "smoker", "region"],
//	  "imputer": {"strategy": "constant", "fill_value": 0},
//	  "scaler":  {"kind": "robust", "center": [...], "scale": [...]}
//	}
type Transformer struct {
	// FeatureNamesIn 变换器期望的输入列（按顺序）
	FeatureNamesIn []string
	// Imputer 缺失值填充，nil 时遇到缺失值报错
	Imputer *Imputer
	// Scaler 缩放器，nil 等价于 IdentityScaler
	Scaler ColumnScaler
}

type transformerFile struct {
	FeatureNamesIn []string `json:"feature_names_in"`
	Imputer        *struct {
		Strategy   string    `json:"strategy"`
		FillValue  float64   `json:"fill_value"`
		Statistics []float64 `json:"statistics"`
	} `json:"imputer"`
	Scaler *struct {
		Kind   string    `json:"kind"`
		Center []float64 `json:"center"`
		Mean   []float64 `json:"mean"`
		Min    []float64 `json:"min"`
		Scale  []float64 `json:"scale"`
	} `json:"scaler"`
}

// ParseTransformer 解析 transformer.json 内容
func ParseTransformer(data []byte) (*Transformer, error) {
	var raw transformerFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, core.WrapError(core.ModuleFeature, core.ErrorCodeInvalidInput, "feature: parse transformer", err)
	}
	if len(raw.FeatureNamesIn) == 0 {
		return nil, invalidArtifact("transformer has no feature_names_in")
	}

	t := &Transformer{FeatureNamesIn: raw.FeatureNamesIn, Scaler: IdentityScaler{}}
	width := len(raw.FeatureNamesIn)

	if raw.Imputer != nil {
		t.Imputer = &Imputer{
			Strategy:   raw.Imputer.Strategy,
			FillValue:  raw.Imputer.FillValue,
			Statistics: raw.Imputer.Statistics,
		}
		if err := t.Imputer.validate(width); err != nil {
			return nil, err
		}
	}

	if raw.Scaler != nil {
		switch raw.Scaler.Kind {
		case ScalerRobust:
			t.Scaler = &RobustScaler{Center: raw.Scaler.Center, Scale: raw.Scaler.Scale}
		case ScalerStandard:
			t.Scaler = &StandardScaler{Mean: raw.Scaler.Mean, Scale: raw.Scaler.Scale}
		case ScalerMinMax:
			if len(raw.Scaler.Min) != width || len(raw.Scaler.Scale) != width {
				return nil, invalidArtifact(fmt.Sprintf("minmax scaler needs min and scale with %d columns, got %d and %d",
					width, len(raw.Scaler.Min), len(raw.Scaler.Scale)))
			}
			t.Scaler = &MinMaxScaler{Min: raw.Scaler.Min, Scale: raw.Scaler.Scale}
		case ScalerNone, "":
		default:
			return nil, invalidArtifact(fmt.Sprintf("unknown scaler kind %q", raw.Scaler.Kind))
		}
		if w := t.Scaler.Width(); w > 0 && w != width {
			return nil, invalidArtifact(fmt.Sprintf("scaler has %d columns, want %d", w, width))
		}
		for _, params := range [][]float64{raw.Scaler.Center, raw.Scaler.Mean} {
			if params != nil && len(params) != width {
				return nil, invalidArtifact(fmt.Sprintf("scaler parameter has %d columns, want %d", len(params), width))
			}
		}
	}
	return t, nil
}

// LoadTransformerFromFile 从文件加载特征变换器
func LoadTransformerFromFile(path string) (*Transformer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.WrapError(core.ModuleFeature, core.ErrorCodeNotFound, "feature: read transformer "+path, err)
	}
	return ParseTransformer(data)
}

// Transform 按 FeatureNamesIn 顺序取列，解析为数值，填充缺失值并缩放。
// 返回 rows x len(FeatureNamesIn) 的矩阵；空表返回错误（调用方应提前短路）。
func (t *Transformer) Transform(frame *dataset.Frame) (*mat.Dense, error) {
	rows, cols := frame.Len(), len(t.FeatureNamesIn)
	if rows == 0 {
		return nil, core.NewDomainError(core.ModuleFeature, core.ErrorCodeInvalidInput, "feature: cannot transform empty input")
	}

	columns := make([]*dataset.Column, cols)
	var missingCols []string
	for j, name := range t.FeatureNamesIn {
		c, ok := frame.Column(name)
		if !ok {
			missingCols = append(missingCols, name)
			continue
		}
		columns[j] = c
	}
	if len(missingCols) > 0 {
		return nil, core.NewDomainError(core.ModuleFeature, core.ErrorCodeInvalidInput,
			fmt.Sprintf("feature: columns are missing: %v", missingCols))
	}

	scaler := t.Scaler
	if scaler == nil {
		scaler = IdentityScaler{}
	}

	data := make([]float64, rows*cols)
	for j, c := range columns {
		for i := 0; i < rows; i++ {
			v, err := c.Float(i)
			if err != nil {
				return nil, err
			}
			if math.IsNaN(v) {
				if t.Imputer == nil {
					return nil, core.NewDomainError(core.ModuleFeature, core.ErrorCodeInvalidInput,
						fmt.Sprintf("feature: column %q row %d is missing and transformer has no imputer", c.Name(), i))
				}
				v = t.Imputer.Fill(j)
			}
			data[i*cols+j] = scaler.ScaleValue(j, v)
		}
	}
	return mat.NewDense(rows, cols, data), nil
}
