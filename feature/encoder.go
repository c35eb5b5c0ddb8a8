package feature

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/rushteam/insurekit/core"
	"github.com/rushteam/insurekit/dataset"
)

// 编码模式
const (
	// EncoderRefit 每个类别列重新拟合（类别按字典序排序后取下标），批量预测默认行为
	EncoderRefit = "refit"
	// EncoderFitted 使用产物中保存的类别表，未知类别报错
	EncoderFitted = "fitted"
	// EncoderAuto 产物中有该列的类别表时使用，否则重新拟合
	EncoderAuto = "auto"
)

// LabelEncoder Label 编码（标签编码），批量预测中作为 target encoder 使用。
// 将类别映射为整数（0, 1, 2, ...），对应 target_encoder.json：
//
//	{"kind": "label", "classes": {"sex": ["female", "male"], "smoker": ["no", "yes"]}}
type LabelEncoder struct {
	// Classes 每个特征名对应的类别列表（已排序，下标即编码）
	Classes map[string][]string
}

// NewLabelEncoder 创建 Label 编码器
func NewLabelEncoder(classes map[string][]string) *LabelEncoder {
	if classes == nil {
		classes = make(map[string][]string)
	}
	return &LabelEncoder{Classes: classes}
}

// ParseLabelEncoder 解析 target_encoder.json 内容
func ParseLabelEncoder(data []byte) (*LabelEncoder, error) {
	var raw struct {
		Kind    string              `json:"kind"`
		Classes map[string][]string `json:"classes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, core.WrapError(core.ModuleFeature, core.ErrorCodeInvalidInput, "feature: parse target encoder", err)
	}
	if raw.Kind != "" && raw.Kind != "label" {
		return nil, invalidArtifact(fmt.Sprintf("unsupported target encoder kind %q", raw.Kind))
	}
	for name, classes := range raw.Classes {
		if !sort.StringsAreSorted(classes) {
			return nil, invalidArtifact(fmt.Sprintf("target encoder classes for %q are not sorted", name))
		}
	}
	return NewLabelEncoder(raw.Classes), nil
}

// LoadLabelEncoderFromFile 从文件加载 target encoder
func LoadLabelEncoderFromFile(path string) (*LabelEncoder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.WrapError(core.ModuleFeature, core.ErrorCodeNotFound, "feature: read target encoder "+path, err)
	}
	return ParseLabelEncoder(data)
}

// Fit 计算列的类别表：非缺失值去重后按字典序排序
func Fit(col *dataset.Column) []string {
	seen := make(map[string]struct{})
	classes := make([]string, 0)
	for i := 0; i < col.Len(); i++ {
		v, ok := col.Text(i)
		if !ok {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		classes = append(classes, v)
	}
	sort.Strings(classes)
	return classes
}

// FitTransform 用当前列重新拟合并编码，同时记住该列的类别表
func (e *LabelEncoder) FitTransform(col *dataset.Column) *dataset.Column {
	classes := Fit(col)
	e.Classes[col.Name()] = classes
	out, _ := encode(col, classes)
	return out
}

// Transform 使用已保存的类别表编码，列没有类别表或遇到未知类别时报错
func (e *LabelEncoder) Transform(col *dataset.Column) (*dataset.Column, error) {
	classes, ok := e.Classes[col.Name()]
	if !ok {
		return nil, core.NewDomainError(core.ModuleFeature, core.ErrorCodeNotFound,
			fmt.Sprintf("feature: target encoder has no classes for %q", col.Name()))
	}
	return encode(col, classes)
}

// Encode 按 mode 编码一列
func (e *LabelEncoder) Encode(col *dataset.Column, mode string) (*dataset.Column, error) {
	switch mode {
	case EncoderRefit, "":
		return e.FitTransform(col), nil
	case EncoderFitted:
		return e.Transform(col)
	case EncoderAuto:
		if _, ok := e.Classes[col.Name()]; ok {
			return e.Transform(col)
		}
		return e.FitTransform(col), nil
	default:
		return nil, core.NewDomainError(core.ModuleFeature, core.ErrorCodeInvalidInput,
			fmt.Sprintf("feature: unknown encoder mode %q", mode))
	}
}

// encode 将类别映射为 int64 下标，缺失值保持缺失（交给 Transformer 的 Imputer 处理）
func encode(col *dataset.Column, classes []string) (*dataset.Column, error) {
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	labels := make([]any, col.Len())
	for i := range labels {
		v, ok := col.Text(i)
		if !ok {
			continue
		}
		label, ok := index[v]
		if !ok {
			return nil, core.NewDomainError(core.ModuleFeature, core.ErrorCodeInvalidInput,
				fmt.Sprintf("feature: column %q contains previously unseen label %q", col.Name(), v))
		}
		labels[i] = int64(label)
	}
	return dataset.NewIntColumn(col.Name(), labels...), nil
}
