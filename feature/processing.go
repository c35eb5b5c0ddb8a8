package feature

import (
	"fmt"
	"math"

	"github.com/rushteam/insurekit/core"
)

// ColumnScaler 是按列索引工作的缩放器，参数由训练阶段导出。
type ColumnScaler interface {
	// Kind 返回缩放器类型（robust / standard / minmax / none）
	Kind() string
	// Width 返回参数覆盖的列数，0 表示不限
	Width() int
	// ScaleValue 缩放第 j 列的值
	ScaleValue(j int, value float64) float64
}

// RobustScaler Robust 标准化
// 公式: x' = (x - center) / scale，scale 通常为 IQR
// 特点: 对异常值鲁棒
type RobustScaler struct {
	Center []float64
	Scale  []float64
}

func (s *RobustScaler) Kind() string { return ScalerRobust }
func (s *RobustScaler) Width() int { return len(s.Scale) }

func (s *RobustScaler) ScaleValue(j int, value float64) float64 {
	var center float64
	if s.Center != nil {
		center = s.Center[j]
	}
	return (value - center) / safeScale(s.Scale, j)
}

// StandardScaler Z-score 标准化
// 公式: z = (x - μ) / σ
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

func (s *StandardScaler) Kind() string { return ScalerStandard }
func (s *StandardScaler) Width() int { return len(s.Scale) }

func (s *StandardScaler) ScaleValue(j int, value float64) float64 {
	var mean float64
	if s.Mean != nil {
		mean = s.Mean[j]
	}
	return (value - mean) / safeScale(s.Scale, j)
}

// MinMaxScaler Min-Max 归一化
// 公式: x' = x * scale + min（scale = 1 / (max - min)，min = -data_min * scale）
type MinMaxScaler struct {
	Min   []float64
	Scale []float64
}

func (s *MinMaxScaler) Kind() string { return ScalerMinMax }
func (s *MinMaxScaler) Width() int { return len(s.Scale) }

func (s *MinMaxScaler) ScaleValue(j int, value float64) float64 {
	return value*s.Scale[j] + s.Min[j]
}

// IdentityScaler 不做任何缩放
type IdentityScaler struct{}

func (IdentityScaler) Kind() string { return ScalerNone }
func (IdentityScaler) Width() int { return 0 }
func (IdentityScaler) ScaleValue(_ int, v float64) float64 { return v }

// 缩放器类型
const (
	ScalerRobust   = "robust"
	ScalerStandard = "standard"
	ScalerMinMax   = "minmax"
	ScalerNone     = "none"
)

// safeScale 为 0 的 scale 视为 1（与训练侧处理常量列的方式一致）
func safeScale(scale []float64, j int) float64 {
	if scale == nil {
		return 1
	}
	if s := scale[j]; s != 0 && !math.IsNaN(s) {
		return s
	}
	return 1
}

// 缺失值填充策略
const (
	ImputeConstant     = "constant"
	ImputeMean         = "mean"
	ImputeMedian       = "median"
	ImputeMostFrequent = "most_frequent"
)

// Imputer 缺失值处理器
type Imputer struct {
	// Strategy 处理策略：constant, mean, median, most_frequent
	Strategy string
	// FillValue constant 策略使用的填充值
	FillValue float64
	// Statistics 其余策略下每列的填充值（训练阶段计算）
	Statistics []float64
}

// Fill 返回第 j 列的填充值
func (imp *Imputer) Fill(j int) float64 {
	if imp.Strategy == ImputeConstant || imp.Strategy == "" {
		return imp.FillValue
	}
	return imp.Statistics[j]
}

func (imp *Imputer) validate(width int) error {
	switch imp.Strategy {
	case "", ImputeConstant:
		return nil
	case ImputeMean, ImputeMedian, ImputeMostFrequent:
		if len(imp.Statistics) != width {
			return invalidArtifact(fmt.Sprintf("imputer statistics has %d values, want %d", len(imp.Statistics), width))
		}
		return nil
	default:
		return invalidArtifact(fmt.Sprintf("unknown imputer strategy %q", imp.Strategy))
	}
}

func invalidArtifact(msg string) error {
	return core.NewDomainError(core.ModuleFeature, core.ErrorCodeInvalidInput, "feature: "+msg)
}
