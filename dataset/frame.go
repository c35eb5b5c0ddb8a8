// Package dataset 在 dataframe-go 之上提供批量预测使用的列式数据表（Frame）。
//
// 读取时按列推断类型：全部为整数且无缺失的列为 int64，全部可解析为数值的列为 float64，
// 其余为 object（类别）列。缺失值在各类型的 Series 中均表示为 nil。
package dataset

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	dataframe "github.com/rocketlaunchr/dataframe-go"

	"github.com/rushteam/insurekit/core"
)

// DType 是列的类型
type DType string

const (
	DTypeFloat  DType = "float64"
	DTypeInt    DType = "int64"
	DTypeObject DType = "object"
)

// Column 是 Frame 的一列，底层为 *SeriesInt64、*SeriesFloat64 或 *SeriesString。
type Column struct {
	s dataframe.Series
}

// NewStringColumn 创建 object 列，nil 表示缺失
func NewStringColumn(name string, values ...any) *Column {
	return &Column{s: dataframe.NewSeriesString(name, nil, values...)}
}

// NewIntColumn 创建 int64 列，nil 表示缺失
func NewIntColumn(name string, values ...any) *Column {
	return &Column{s: dataframe.NewSeriesInt64(name, nil, values...)}
}

// NewFloatColumn 创建 float64 列，NaN 表示缺失
func NewFloatColumn(name string, values []float64) *Column {
	vals := make([]any, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		vals[i] = v
	}
	return &Column{s: dataframe.NewSeriesFloat64(name, nil, vals...)}
}

// Name 列名
func (c *Column) Name() string { return c.s.Name() }

// Len 返回列长度
func (c *Column) Len() int { return c.s.NRows() }

// IsMissing 判断第 i 个值是否缺失
func (c *Column) IsMissing(i int) bool { return c.s.Value(i) == nil }

// DType 返回列类型
func (c *Column) DType() DType {
	switch c.s.(type) {
	case *dataframe.SeriesInt64:
		return DTypeInt
	case *dataframe.SeriesFloat64:
		return DTypeFloat
	default:
		return DTypeObject
	}
}

// IsObject 等价于 DType() == DTypeObject
func (c *Column) IsObject() bool { return c.DType() == DTypeObject }

// Float 将第 i 个值转换为浮点数，缺失值返回 NaN。
func (c *Column) Float(i int) (float64, error) {
	switch v := c.s.Value(i).(type) {
	case nil:
		return math.NaN(), nil
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, core.WrapError(core.ModuleDataset, core.ErrorCodeInvalidInput,
				fmt.Sprintf("dataset: column %q row %d: %q is not numeric", c.Name(), i, v), err)
		}
		return f, nil
	default:
		return 0, core.NewDomainError(core.ModuleDataset, core.ErrorCodeInvalidInput,
			fmt.Sprintf("dataset: column %q row %d: unsupported value %T", c.Name(), i, v))
	}
}

// Value 返回第 i 个值：缺失为 nil，其余为 int64、float64 或 string。
func (c *Column) Value(i int) any { return c.s.Value(i) }

// Text 返回第 i 个值写出 CSV 时的文本，浮点数按 FormatFloat 渲染；缺失时 ok 为 false。
func (c *Column) Text(i int) (text string, ok bool) {
	switch v := c.s.Value(i).(type) {
	case nil:
		return "", false
	case float64:
		return FormatFloat(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case string:
		return v, true
	default:
		return c.s.ValueString(i), true
	}
}

// Frame 是按列存储的数据表，列顺序与输入 CSV 一致。
type Frame struct {
	df *dataframe.DataFrame
}

// NewFrame 由若干列创建表；列名重复或长度不一致时返回错误。
func NewFrame(cols ...*Column) (*Frame, error) {
	seen := make(map[string]struct{}, len(cols))
	series := make([]dataframe.Series, len(cols))
	for i, c := range cols {
		if _, ok := seen[c.Name()]; ok {
			return nil, core.NewDomainError(core.ModuleDataset, core.ErrorCodeInvalidInput,
				fmt.Sprintf("dataset: duplicate column %q", c.Name()))
		}
		seen[c.Name()] = struct{}{}
		if c.Len() != cols[0].Len() {
			return nil, core.NewDomainError(core.ModuleDataset, core.ErrorCodeInvalidInput,
				fmt.Sprintf("dataset: column %q has %d values, want %d", c.Name(), c.Len(), cols[0].Len()))
		}
		series[i] = c.s
	}
	return &Frame{df: dataframe.NewDataFrame(series...)}, nil
}

// DataFrame 返回底层 DataFrame
func (f *Frame) DataFrame() *dataframe.DataFrame { return f.df }

// Len 返回行数
func (f *Frame) Len() int {
	if len(f.df.Series) == 0 {
		return 0
	}
	return f.df.NRows()
}

// Names 返回列名（按顺序）
func (f *Frame) Names() []string { return f.df.Names() }

// Columns 返回所有列（按顺序）
func (f *Frame) Columns() []*Column {
	cols := make([]*Column, len(f.df.Series))
	for i, s := range f.df.Series {
		cols[i] = &Column{s: s}
	}
	return cols
}

// Column 按列名取列
func (f *Frame) Column(name string) (*Column, bool) {
	i, err := f.df.NameToColumn(name)
	if err != nil {
		return nil, false
	}
	return &Column{s: f.df.Series[i]}, true
}

// SetColumn 替换同名列，不存在时追加到末尾。
func (f *Frame) SetColumn(col *Column) error {
	if len(f.df.Series) > 0 && col.Len() != f.Len() {
		return core.NewDomainError(core.ModuleDataset, core.ErrorCodeInvalidInput,
			fmt.Sprintf("dataset: column %q has %d values, frame has %d rows", col.Name(), col.Len(), f.Len()))
	}
	if i, err := f.df.NameToColumn(col.Name()); err == nil {
		f.df.Series[i] = col.s
		return nil
	}
	if err := f.df.AddSeries(col.s, nil); err != nil {
		return core.WrapError(core.ModuleDataset, core.ErrorCodeInvalidInput, "dataset: add column "+col.Name(), err)
	}
	return nil
}

// SetFloatColumn 以浮点数写入一列，NaN 视为缺失。
func (f *Frame) SetFloatColumn(name string, values []float64) error {
	return f.SetColumn(NewFloatColumn(name, values))
}

// Row 返回第 i 行（列名 -> 值），值的表示同 Column.Value。
func (f *Frame) Row(i int) map[string]any {
	row := make(map[string]any, len(f.df.Series))
	for _, s := range f.df.Series {
		row[s.Name()] = s.Value(i)
	}
	return row
}

// DTypes 返回所有列的类型
func (f *Frame) DTypes() map[string]DType {
	dtypes := make(map[string]DType, len(f.df.Series))
	for _, c := range f.Columns() {
		dtypes[c.Name()] = c.DType()
	}
	return dtypes
}

// Filter 返回只包含 keep[i] == true 行的新表，列类型保持不变。
func (f *Frame) Filter(ctx context.Context, keep []bool) (*Frame, error) {
	if len(keep) != f.Len() {
		return nil, core.NewDomainError(core.ModuleDataset, core.ErrorCodeInvalidInput,
			fmt.Sprintf("dataset: filter mask has %d entries, frame has %d rows", len(keep), f.Len()))
	}
	fn := dataframe.FilterDataFrameFn(func(_ map[interface{}]interface{}, row, _ int) (dataframe.FilterAction, error) {
		if keep[row] {
			return dataframe.KEEP, nil
		}
		return dataframe.DROP, nil
	})
	out, err := dataframe.Filter(ctx, f.df, fn)
	if err != nil {
		return nil, core.WrapError(core.ModuleDataset, core.ErrorCodeInternalError, "dataset: filter rows", err)
	}
	return &Frame{df: out.(*dataframe.DataFrame)}, nil
}

// FormatFloat 按 Python repr 的习惯格式化浮点数（1.0、0.25、1e-05）。
func FormatFloat(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	if math.IsInf(v, -1) {
		return "-inf"
	}
	abs := math.Abs(v)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}

// inferDType 按 pandas 的规则推断一列字符串的类型。全缺失（含空列）视为 float64。
func inferDType(values []*string) DType {
	allInt, present, missing := true, 0, false
	for _, v := range values {
		if v == nil {
			missing = true
			continue
		}
		present++
		s := strings.TrimSpace(*v)
		if _, err := strconv.ParseInt(s, 10, 64); err == nil {
			continue
		}
		allInt = false
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return DTypeObject
		}
	}
	if allInt && present > 0 && !missing {
		return DTypeInt
	}
	return DTypeFloat
}

// typedColumn 把字符串 Series 转换为推断出的类型
func typedColumn(name string, values []*string) *Column {
	vals := make([]any, len(values))
	switch inferDType(values) {
	case DTypeInt:
		for i, v := range values {
			n, _ := strconv.ParseInt(strings.TrimSpace(*v), 10, 64)
			vals[i] = n
		}
		return NewIntColumn(name, vals...)
	case DTypeFloat:
		floats := make([]float64, len(values))
		for i, v := range values {
			if v == nil {
				floats[i] = math.NaN()
				continue
			}
			floats[i], _ = strconv.ParseFloat(strings.TrimSpace(*v), 64)
		}
		return NewFloatColumn(name, floats)
	default:
		for i, v := range values {
			if v != nil {
				vals[i] = *v
			}
		}
		return NewStringColumn(name, vals...)
	}
}
