package predict

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/rushteam/insurekit/core"
	"github.com/rushteam/insurekit/metrics"
	"github.com/rushteam/insurekit/model"
	"github.com/rushteam/insurekit/registry"
)

const (
	testTransformer = `{
  "feature_names_in": ["age", "sex", "bmi", "smoker"],
  "imputer": {"strategy": "constant", "fill_value": 0},
  "scaler": {"kind": "none"}
}`
	testEncoder = `{"kind": "label", "classes": {"sex": ["female", "male"], "smoker": ["no", "yes"]}}`
	testModel   = `{"kind": "linear", "coef": [1, 10, 0, 100], "intercept": 0}`

	testInput = `age,sex,bmi,smoker,region
19,female,27.9,yes,southwest
na,male,33.77,no,southeast
28,male,na,na,southeast
`
)

var fixedNow = time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

type fixture struct {
	registry  string
	outputDir string
	input     string
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newFixture(t *testing.T, input string, encoder string) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		registry:  filepath.Join(root, "saved_models"),
		outputDir: filepath.Join(root, "prediction"),
		input:     filepath.Join(root, "insurance.csv"),
	}
	// 旧版本的模型不应被使用
	writeFile(t, filepath.Join(f.registry, "0", registry.ModelDirName, registry.ModelFileName), `{"kind": "linear", "coef": [0, 0, 0, 0], "intercept": -1}`)

	dir := filepath.Join(f.registry, "1")
	writeFile(t, filepath.Join(dir, registry.TransformerDirName, registry.TransformerFileName), testTransformer)
	writeFile(t, filepath.Join(dir, registry.TargetEncoderDirName, registry.TargetEncoderFileName), encoder)
	writeFile(t, filepath.Join(dir, registry.ModelDirName, registry.ModelFileName), testModel)
	writeFile(t, f.input, input)
	return f
}

func (f *fixture) predictor(t *testing.T, opts ...Option) *BatchPredictor {
	t.Helper()
	opts = append([]Option{WithPredictionDir(f.outputDir), WithClock(fixedClock)}, opts...)
	p, err := New(registry.NewModelResolver(f.registry), opts...)
	require.NoError(t, err)
	return p
}

func readOutput(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func stageOf(t *testing.T, err error) string {
	t.Helper()
	d := core.GetDomainError(err)
	require.NotNil(t, d, "expected a domain error, got %v", err)
	assert.Equal(t, core.ModulePredict, d.Module)
	return d.Stage
}

func TestBatchPredictor_Run(t *testing.T) {
	f := newFixture(t, testInput, testEncoder)

	out, err := f.predictor(t).Run(context.Background(), f.input)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.outputDir, "insurance03052024__140709.csv"), out)

	assert.Equal(t, []string{
		"age,sex,bmi,smoker,region,prediction",
		"19.0,0,27.9,1,southwest,119.0",
		",1,33.77,0,southeast,10.0",
		"28.0,1,,,southeast,38.0",
	}, readOutput(t, out))
}

func TestBatchPredictor_ByteOrderMark(t *testing.T) {
	f := newFixture(t, "\ufeff"+testInput, testEncoder)

	out, err := f.predictor(t).Run(context.Background(), f.input)
	require.NoError(t, err)
	lines := readOutput(t, out)
	assert.Equal(t, "age,sex,bmi,smoker,region,prediction", lines[0])
	assert.Equal(t, "19.0,0,27.9,1,southwest,119.0", lines[1])
}

func TestBatchPredictor_Metrics(t *testing.T) {
	f := newFixture(t, testInput, testEncoder)
	m := metrics.NewBatchMetrics()

	_, err := f.predictor(t, WithMetrics(m), WithFilter(`row.sex == "male"`)).Run(context.Background(), f.input)
	require.NoError(t, err)

	expected := `
# HELP insurekit_batch_rows_filtered Rows dropped by the row filter in the last run.
# TYPE insurekit_batch_rows_filtered gauge
insurekit_batch_rows_filtered 1
# HELP insurekit_batch_rows_predicted Rows written with a prediction in the last run.
# TYPE insurekit_batch_rows_predicted gauge
insurekit_batch_rows_predicted 2
# HELP insurekit_batch_rows_read Rows read from the input file in the last run.
# TYPE insurekit_batch_rows_read gauge
insurekit_batch_rows_read 3
# HELP insurekit_batch_runs_total Batch prediction runs by model and result.
# TYPE insurekit_batch_runs_total counter
insurekit_batch_runs_total{model="linear",result="success"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"insurekit_batch_rows_filtered", "insurekit_batch_rows_predicted",
		"insurekit_batch_rows_read", "insurekit_batch_runs_total"))
}

func TestBatchPredictor_Filter(t *testing.T) {
	f := newFixture(t, testInput, testEncoder)

	out, err := f.predictor(t, WithFilter(`row.sex == "male"`)).Run(context.Background(), f.input)
	require.NoError(t, err)

	// 过滤后重新拟合：sex 只剩 male -> 0，smoker 只剩 no -> 0
	assert.Equal(t, []string{
		"age,sex,bmi,smoker,region,prediction",
		",0,33.77,0,southeast,0.0",
		"28.0,0,,,southeast,28.0",
	}, readOutput(t, out))
}

func TestBatchPredictor_FittedEncoder(t *testing.T) {
	input := "age,sex,bmi,smoker\n40,male,30,no\n"

	f := newFixture(t, input, testEncoder)
	out, err := f.predictor(t, WithEncoderMode("fitted")).Run(context.Background(), f.input)
	require.NoError(t, err)
	assert.Equal(t, "40,1,30,0,50.0", readOutput(t, out)[1])

	f = newFixture(t, input, `{"kind": "label", "classes": {"sex": ["female"], "smoker": ["no", "yes"]}}`)
	_, err = f.predictor(t, WithEncoderMode("fitted")).Run(context.Background(), f.input)
	require.Error(t, err)
	assert.Equal(t, StageEncode, stageOf(t, err))
	assert.True(t, core.IsInvalidInput(err))
}

func TestBatchPredictor_NoModel(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "insurance.csv")
	writeFile(t, input, testInput)
	outputDir := filepath.Join(root, "prediction")

	p, err := New(registry.NewModelResolver(filepath.Join(root, "saved_models")),
		WithPredictionDir(outputDir), WithClock(fixedClock))
	require.NoError(t, err)

	_, err = p.Run(context.Background(), input)
	require.Error(t, err)
	assert.Equal(t, StageResolve, stageOf(t, err))
	assert.True(t, core.IsNotFound(err))
	assert.ErrorIs(t, err, core.ErrModelNotFound)
	assert.Contains(t, err.Error(), "is not available")

	entries, err := os.ReadDir(outputDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBatchPredictor_MissingInput(t *testing.T) {
	f := newFixture(t, testInput, testEncoder)
	_, err := f.predictor(t).Run(context.Background(), f.input+".missing")
	require.Error(t, err)
	assert.Equal(t, StageRead, stageOf(t, err))
	assert.True(t, core.IsNotFound(err))
}

func TestBatchPredictor_MissingFeatureColumn(t *testing.T) {
	f := newFixture(t, "age,sex,smoker\n19,female,yes\n", testEncoder)
	_, err := f.predictor(t).Run(context.Background(), f.input)
	require.Error(t, err)
	assert.Equal(t, StageTransform, stageOf(t, err))
	assert.Contains(t, err.Error(), "bmi")
}

type countingLoader struct {
	calls atomic.Int32
	model model.Regressor
}

func (l *countingLoader) Load(_ context.Context, _ string, _ model.BuildOptions) (model.Regressor, error) {
	l.calls.Add(1)
	return l.model, nil
}

// rowIndexModel 返回每行第一个特征，便于检查分块后的顺序
type rowIndexModel struct {
	calls atomic.Int32
	err   error
}

func (m *rowIndexModel) Name() string { return "row_index" }

func (m *rowIndexModel) Predict(_ context.Context, x mat.Matrix) ([]float64, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	rows, _ := x.Dims()
	out := make([]float64, rows)
	for i := range out {
		out[i] = x.At(i, 0)
	}
	return out, nil
}

func TestBatchPredictor_Chunking(t *testing.T) {
	var b strings.Builder
	b.WriteString("age,sex,bmi,smoker\n")
	for i := 0; i < 25; i++ {
		b.WriteString(strings.Join([]string{strconv.Itoa(i), "male", "30", "no"}, ",") + "\n")
	}
	f := newFixture(t, b.String(), testEncoder)

	m := &rowIndexModel{}
	loader := &countingLoader{model: m}
	out, err := f.predictor(t, WithChunking(4, 3), WithLoaders(nil, nil, loader)).Run(context.Background(), f.input)
	require.NoError(t, err)

	assert.Equal(t, int32(1), loader.calls.Load())
	assert.Equal(t, int32(7), m.calls.Load())

	lines := readOutput(t, out)
	require.Len(t, lines, 26)
	for i, line := range lines[1:] {
		assert.True(t, strings.HasSuffix(line, ","+strconv.Itoa(i)+".0"), line)
	}
}

func TestBatchPredictor_ModelError(t *testing.T) {
	f := newFixture(t, testInput, testEncoder)
	boom := errors.New("boom")
	loader := &countingLoader{model: &rowIndexModel{err: boom}}

	_, err := f.predictor(t, WithLoaders(nil, nil, loader), WithChunking(1, 2)).Run(context.Background(), f.input)
	require.Error(t, err)
	assert.Equal(t, StagePredict, stageOf(t, err))
	assert.ErrorIs(t, err, boom)
}

func TestBatchPredictor_EmptyInput(t *testing.T) {
	f := newFixture(t, "age,sex,bmi,smoker\n", testEncoder)
	loader := &countingLoader{model: &rowIndexModel{}}

	out, err := f.predictor(t, WithLoaders(nil, nil, loader)).Run(context.Background(), f.input)
	require.NoError(t, err)
	assert.Equal(t, []string{"age,sex,bmi,smoker,prediction"}, readOutput(t, out))
	assert.Equal(t, int32(0), loader.calls.Load())
}

func TestNew_Invalid(t *testing.T) {
	r := registry.NewModelResolver(t.TempDir())

	_, err := New(r, WithEncoderMode("onehot"))
	assert.True(t, core.IsInvalidInput(err))

	_, err = New(r, WithFilter("row.age +"))
	assert.True(t, core.IsInvalidInput(err))
}

func TestOutputFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"insurance.csv", "insurance03052024__140709.csv"},
		{"/data/in/insurance.csv", "insurance03052024__140709.csv"},
		{"batch.csv.bak", "batch03052024__140709.csv.bak"},
		{"insurance", "insurance03052024__140709.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, OutputFileName(tt.in, fixedNow))
		})
	}
}
