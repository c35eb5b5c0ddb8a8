// Package docstore 将 CSV 数据集按行导入文档数据库（MongoDB）。
package docstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rushteam/insurekit/core"
	"github.com/rushteam/insurekit/dataset"
	"github.com/rushteam/insurekit/pkg/conv"
)

// 默认导入目标
const (
	DefaultDatabase   = "INSURANCE"
	DefaultCollection = "INSURANCE_PROJECT"
	DefaultBatchSize  = 1000
)

// DocumentStore 文档数据库的最小写入接口
type DocumentStore interface {
	// InsertMany 写入一批文档，返回写入条数
	InsertMany(ctx context.Context, database, collection string, docs []map[string]any) (int, error)
	Close(ctx context.Context) error
}

// DumpOptions 导入选项
type DumpOptions struct {
	Database   string
	Collection string
	// BatchSize 每次 InsertMany 的文档数，<= 0 使用 DefaultBatchSize
	BatchSize int
	Logger    *zap.Logger
}

func (o DumpOptions) withDefaults() DumpOptions {
	if o.Database == "" {
		o.Database = DefaultDatabase
	}
	if o.Collection == "" {
		o.Collection = DefaultCollection
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Records 把表转换为文档：整数列为 int64，浮点列为 float64，缺失值为 nil，其余为字符串。
func Records(frame *dataset.Frame) []map[string]any {
	docs := make([]map[string]any, frame.Len())
	for i := range docs {
		docs[i] = frame.Row(i)
	}
	return docs
}

// Dump 读取 path 指向的 CSV，每行一个文档，分批写入 store。返回写入的文档数。
// 缺失值按 dataset.DefaultNATokens 识别，写入为 null。
func Dump(ctx context.Context, store DocumentStore, path string, opts DumpOptions) (int, error) {
	opts = opts.withDefaults()
	log := opts.Logger.With(zap.String("path", path),
		zap.String("database", opts.Database), zap.String("collection", opts.Collection))

	frame, err := dataset.ReadCSVFile(ctx, path, dataset.ReadOptions{})
	if err != nil {
		return 0, core.WrapError(core.ModuleDocStore, codeOf(err), "docstore: read "+path, err)
	}
	log.Info("rows and columns", zap.Int("rows", frame.Len()), zap.Int("columns", len(frame.Names())))

	docs := Records(frame)
	if len(docs) == 0 {
		log.Warn("nothing to insert")
		return 0, nil
	}
	log.Info("first record", zap.Any("record", docs[0]))

	inserted := 0
	for _, chunk := range conv.Chunks(len(docs), opts.BatchSize) {
		if err := ctx.Err(); err != nil {
			return inserted, err
		}
		n, err := store.InsertMany(ctx, opts.Database, opts.Collection, docs[chunk[0]:chunk[1]])
		inserted += n
		if err != nil {
			return inserted, fmt.Errorf("insert rows [%d, %d): %w", chunk[0], chunk[1], err)
		}
		log.Debug("batch inserted", zap.Int("from", chunk[0]), zap.Int("to", chunk[1]))
	}
	log.Info("dump finished", zap.Int("inserted", inserted))
	return inserted, nil
}

func codeOf(err error) string {
	if d := core.GetDomainError(err); d != nil {
		return d.Code
	}
	return core.ErrorCodeInternalError
}
