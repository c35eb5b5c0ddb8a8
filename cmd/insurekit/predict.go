package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rushteam/insurekit/metrics"
	"github.com/rushteam/insurekit/predict"
)

var predictFlags struct {
	outputDir   string
	filter      string
	encoderMode string
	chunkSize   int
	concurrency int
	textfile    string
}

var predictCmd = &cobra.Command{
	Use:   "predict [input.csv]",
	Short: "Run batch prediction on a CSV file",
	Long: `Reads the input CSV (cells equal to "na" are missing), label-encodes the
categorical feature columns, applies the latest transformer and model and writes
<prediction-dir>/<name><MMDDYYYY__HHMMSS>.csv with an extra "prediction" column.

Example:
  insurekit predict insurance.csv --chunk-size 1000 --concurrency 4`,
	Args: cobra.ExactArgs(1),
	RunE: runPredict,
}

func init() {
	f := predictCmd.Flags()
	f.StringVarP(&predictFlags.outputDir, "output-dir", "o", "", "Prediction output directory (overrides prediction.dir)")
	f.StringVar(&predictFlags.filter, "filter", "", "CEL row filter, e.g. 'row.age >= 18'")
	f.StringVar(&predictFlags.encoderMode, "encoder-mode", "", "Categorical encoding: refit, fitted or auto")
	f.IntVar(&predictFlags.chunkSize, "chunk-size", 0, "Rows per model call (0 = all rows at once)")
	f.IntVar(&predictFlags.concurrency, "concurrency", 0, "Chunks predicted concurrently")
	f.StringVar(&predictFlags.textfile, "metrics-textfile", "", "Write Prometheus metrics to this file after the run")
}

func runPredict(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if flags.Changed("output-dir") {
		cfg.Prediction.Dir = predictFlags.outputDir
	}
	if flags.Changed("filter") {
		cfg.Prediction.Filter = predictFlags.filter
	}
	if flags.Changed("encoder-mode") {
		cfg.Prediction.EncoderMode = predictFlags.encoderMode
	}
	if flags.Changed("chunk-size") {
		cfg.Prediction.ChunkSize = predictFlags.chunkSize
	}
	if flags.Changed("concurrency") {
		cfg.Prediction.Concurrency = predictFlags.concurrency
	}
	if flags.Changed("metrics-textfile") {
		cfg.Metrics.Textfile = predictFlags.textfile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	resolver, closeResolver, err := newResolver(ctx)
	if err != nil {
		return err
	}
	defer closeResolver()

	m := metrics.NewBatchMetrics()
	opts := append(cfg.PredictOptions(), predict.WithLogger(logger), predict.WithMetrics(m))
	predictor, err := predict.New(resolver, opts...)
	if err != nil {
		return err
	}

	output, runErr := predictor.Run(ctx, args[0])
	if cfg.Metrics.Textfile != "" {
		if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Warn("failed to write metrics textfile", zap.String("path", cfg.Metrics.Textfile), zap.Error(err))
		}
	}
	if runErr != nil {
		return runErr
	}
	fmt.Fprintln(cmd.OutOrStdout(), output)
	return nil
}
