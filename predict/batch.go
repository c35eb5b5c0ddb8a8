// Package predict 实现批量预测：定位最新模型产物，依次应用 target encoder、特征变换器与模型，写出预测结果 CSV。
package predict

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/rushteam/insurekit/core"
	"github.com/rushteam/insurekit/dataset"
	"github.com/rushteam/insurekit/feature"
	"github.com/rushteam/insurekit/metrics"
	"github.com/rushteam/insurekit/model"
	"github.com/rushteam/insurekit/pkg/conv"
	"github.com/rushteam/insurekit/pkg/dsl"
	"github.com/rushteam/insurekit/registry"
)

// 出错阶段，记录在 core.DomainError.Stage 中
const (
	StagePrepare   = "prepare"
	StageResolve   = "resolve"
	StageRead      = "read"
	StageFilter    = "filter"
	StageLoad      = "load"
	StageEncode    = "encode"
	StageTransform = "transform"
	StagePredict   = "predict"
	StageWrite     = "write"
)

// timestampLayout 对应 MMDDYYYY__HHMMSS
const timestampLayout = "01022006__150405"

// BatchPredictor 批量预测器
type BatchPredictor struct {
	resolver registry.Resolver
	opts     Options
	filter   *dsl.RowFilter
}

// New 创建批量预测器；过滤表达式与编码模式在此校验。
func New(resolver registry.Resolver, opts ...Option) (*BatchPredictor, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	p := &BatchPredictor{resolver: resolver, opts: o}

	switch o.EncoderMode {
	case feature.EncoderRefit, feature.EncoderFitted, feature.EncoderAuto:
	default:
		return nil, core.NewDomainError(core.ModulePredict, core.ErrorCodeInvalidInput,
			fmt.Sprintf("predict: unknown encoder mode %q", o.EncoderMode))
	}
	if o.Filter != "" {
		f, err := dsl.NewRowFilter(o.Filter)
		if err != nil {
			return nil, core.WrapError(core.ModulePredict, core.ErrorCodeInvalidInput, "predict: filter "+o.Filter, err)
		}
		p.filter = f
	}
	return p, nil
}

// OutputFileName 生成预测文件名：输入文件名中的 ".csv" 替换为 "<MMDDYYYY__HHMMSS>.csv"；
// 没有 ".csv" 时直接追加。
func OutputFileName(inputPath string, now time.Time) string {
	base := filepath.Base(inputPath)
	stamp := now.Format(timestampLayout)
	if strings.Contains(base, ".csv") {
		return strings.ReplaceAll(base, ".csv", stamp+".csv")
	}
	return base + stamp + ".csv"
}

// Run 对 inputPath 执行一次批量预测，返回预测文件路径。
// 任意阶段失败都返回 *core.DomainError（Module=predict，Stage 为出错阶段），原始错误可通过 errors.Is/As 获取。
func (p *BatchPredictor) Run(ctx context.Context, inputPath string) (string, error) {
	start := p.opts.Now()
	log := p.opts.Logger.With(zap.String("run_id", uuid.NewString()), zap.String("input", inputPath))
	stats := metrics.RunStats{}

	outputPath, err := p.run(ctx, log, inputPath, &stats)

	stats.Duration = p.opts.Now().Sub(start)
	stats.Succeeded = err == nil
	if p.opts.Metrics != nil {
		p.opts.Metrics.Observe(stats, p.opts.Now())
	}
	if err != nil {
		log.Error("batch prediction failed", zap.Error(err), zap.Duration("elapsed", stats.Duration))
		return "", err
	}
	log.Info("batch prediction finished",
		zap.String("output", outputPath),
		zap.Int("rows", stats.RowsPredicted),
		zap.Duration("elapsed", stats.Duration))
	return outputPath, nil
}

func (p *BatchPredictor) run(ctx context.Context, log *zap.Logger, inputPath string, stats *metrics.RunStats) (string, error) {
	if err := os.MkdirAll(p.opts.PredictionDir, 0o755); err != nil {
		return "", stageError(StagePrepare, err)
	}

	log.Info("resolving latest model artifacts")
	transformerPath, err := p.resolver.LatestTransformerPath(ctx)
	if err != nil {
		return "", stageError(StageResolve, err)
	}
	encoderPath, err := p.resolver.LatestTargetEncoderPath(ctx)
	if err != nil {
		return "", stageError(StageResolve, err)
	}
	modelPath, err := p.resolver.LatestModelPath(ctx)
	if err != nil {
		return "", stageError(StageResolve, err)
	}

	log.Info("reading file", zap.String("path", inputPath))
	frame, err := dataset.ReadCSVFile(ctx, inputPath, dataset.ReadOptions{MissingTokens: p.opts.MissingTokens})
	if err != nil {
		return "", stageError(StageRead, err)
	}
	stats.RowsRead = frame.Len()

	if p.filter != nil {
		filtered, err := p.applyFilter(ctx, frame)
		if err != nil {
			return "", stageError(StageFilter, err)
		}
		stats.RowsFiltered = frame.Len() - filtered.Len()
		log.Info("row filter applied", zap.String("filter", p.filter.String()), zap.Int("dropped", stats.RowsFiltered))
		frame = filtered
	}

	log.Info("loading transformer", zap.String("path", transformerPath))
	transformer, err := p.opts.TransformerLoader.Load(ctx, transformerPath)
	if err != nil {
		return "", stageError(StageLoad, err)
	}

	log.Info("loading target encoder", zap.String("path", encoderPath))
	encoder, err := p.opts.EncoderLoader.Load(ctx, encoderPath)
	if err != nil {
		return "", stageError(StageLoad, err)
	}

	for _, name := range transformer.FeatureNamesIn {
		col, ok := frame.Column(name)
		if !ok || !col.IsObject() {
			continue
		}
		encoded, err := encoder.Encode(col, p.opts.EncoderMode)
		if err != nil {
			return "", stageError(StageEncode, err)
		}
		if err := frame.SetColumn(encoded); err != nil {
			return "", stageError(StageEncode, err)
		}
		log.Debug("encoded categorical column", zap.String("column", name), zap.Int("classes", len(encoder.Classes[name])))
	}

	var preds []float64
	if frame.Len() > 0 {
		x, err := transformer.Transform(frame)
		if err != nil {
			return "", stageError(StageTransform, err)
		}

		log.Info("loading model", zap.String("path", modelPath))
		m, err := p.opts.ModelLoader.Load(ctx, modelPath, model.BuildOptions{FeatureNames: transformer.FeatureNamesIn})
		if err != nil {
			return "", stageError(StageLoad, err)
		}
		stats.Model = m.Name()

		preds, err = p.predict(ctx, m, x)
		if err != nil {
			return "", stageError(StagePredict, err)
		}
	} else {
		log.Warn("no rows to predict")
	}

	if err := frame.SetFloatColumn(p.opts.PredictionColumn, preds); err != nil {
		return "", stageError(StageWrite, err)
	}

	outputPath := filepath.Join(p.opts.PredictionDir, OutputFileName(inputPath, p.opts.Now()))
	if err := dataset.WriteCSVFile(ctx, outputPath, frame); err != nil {
		return "", stageError(StageWrite, err)
	}
	stats.RowsPredicted = len(preds)
	return outputPath, nil
}

func (p *BatchPredictor) applyFilter(ctx context.Context, frame *dataset.Frame) (*dataset.Frame, error) {
	keep := make([]bool, frame.Len())
	for i := range keep {
		ok, err := p.filter.Match(frame.Row(i))
		if err != nil {
			return nil, core.WrapError(core.ModulePredict, core.ErrorCodeInvalidInput, fmt.Sprintf("predict: filter row %d", i), err)
		}
		keep[i] = ok
	}
	return frame.Filter(ctx, keep)
}

// predict 按 ChunkSize 分块，最多 Concurrency 块并发调用模型，结果按行序合并。
func (p *BatchPredictor) predict(ctx context.Context, m model.Regressor, x *mat.Dense) ([]float64, error) {
	rows, cols := x.Dims()
	preds := make([]float64, rows)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for _, chunk := range conv.Chunks(rows, p.opts.ChunkSize) {
		start, end := chunk[0], chunk[1]
		g.Go(func() error {
			out, err := m.Predict(gctx, x.Slice(start, end, 0, cols))
			if err != nil {
				return fmt.Errorf("rows [%d, %d): %w", start, end, err)
			}
			if len(out) != end-start {
				return core.NewDomainError(core.ModuleModel, core.ErrorCodeInternalError,
					fmt.Sprintf("model %s returned %d predictions for %d rows", m.Name(), len(out), end-start))
			}
			copy(preds[start:end], out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return preds, nil
}

func stageError(stage string, err error) error {
	code := core.ErrorCodeInternalError
	if d := core.GetDomainError(err); d != nil {
		code = d.Code
	}
	return &core.DomainError{
		Module:  core.ModulePredict,
		Code:    code,
		Stage:   stage,
		Message: "batch prediction failed",
		Err:     err,
	}
}
