package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

// initCELEnv 初始化 CEL 环境：每行数据以 row 变量暴露，列名为 key
func initCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("row", cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
}

// getCELEnv 获取或创建 CEL 环境
func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = initCELEnv()
	})
	return celEnv, celEnvErr
}

// RowFilter 是批量预测前的行过滤表达式，使用 CEL (Common Expression Language) 实现。
//
// 表达式语法（CEL 标准语法）：
//   - 数值：row.age >= 18 / row.bmi < 40.5
//   - 字符串：row.region == "southwest" / row.smoker != "yes"
//   - 逻辑：row.age > 60 && row.smoker == "yes"
//   - 缺失值：row.bmi != null
//   - 包含：row.region.startsWith("south") / row.region in ["northeast", "northwest"]
//
// 数值列的值为 double（整数列为 int），其余为 string，缺失值为 null。
type RowFilter struct {
	expr string
	prg  cel.Program
}

// NewRowFilter 编译表达式，编译结果可并发复用。表达式必须返回 bool。
func NewRowFilter(expr string) (*RowFilter, error) {
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression must return boolean, got %s", out)
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %w", err)
	}
	return &RowFilter{expr: expr, prg: prg}, nil
}

// String 返回原始表达式
func (f *RowFilter) String() string { return f.expr }

// Match 对一行数据求值
func (f *RowFilter) Match(row map[string]any) (bool, error) {
	out, _, err := f.prg.Eval(map[string]any{"row": row})
	if err != nil {
		// 访问不存在的列会报错，应先用 has(row.col) 检查
		return false, fmt.Errorf("eval error: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", out.Value())
	}
	return result, nil
}
