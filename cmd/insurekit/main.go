package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rushteam/insurekit/config"
	"github.com/rushteam/insurekit/registry"
	"github.com/rushteam/insurekit/store"
)

var (
	// Global flags
	verbose     bool
	configPath  string
	registryDir string
	timeout     time.Duration

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "insurekit",
	Short: "Batch prediction for the insurance premium model",
	Long: `insurekit resolves the latest trained model under the model registry,
applies the saved target encoder, transformer and model to a CSV file and writes
the predictions next to the input rows.

It also loads raw CSV datasets into MongoDB (datadump).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if registryDir != "" {
			cfg.Registry.Dir = registryDir
		}
		logger, err = newLogger(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func newLogger(c config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(c.Level)
	if err != nil {
		return nil, err
	}
	zc.Level = level
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zc.Build()
}

// commandContext 返回带超时、在 SIGINT/SIGTERM 时取消的 context
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// newResolver 按配置创建模型仓库解析器；redis 后端时 latest 版本号从 Redis 指针读取。
func newResolver(ctx context.Context) (*registry.ModelResolver, func(), error) {
	if cfg.Registry.Backend != config.BackendRedis {
		return registry.NewModelResolver(cfg.Registry.Dir), func() {}, nil
	}
	rc := cfg.Registry.Redis
	kv, err := store.NewRedisStore(ctx, store.RedisConfig{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
		Timeout:  rc.Timeout,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("using redis latest pointer", zap.String("addr", rc.Addr), zap.String("key", rc.PointerKey()))
	closer := func() { _ = kv.Close() }
	return registry.NewModelResolver(cfg.Registry.Dir, registry.WithPointer(kv, rc.PointerKey())), closer, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to insurekit.yaml (default: built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&registryDir, "registry", "", "Model registry directory (overrides registry.dir)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Operation timeout (0 = none)")

	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(dataDumpCmd)
	rootCmd.AddCommand(modelsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
