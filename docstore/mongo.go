package docstore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/rushteam/insurekit/core"
)

// MongoStore 基于 mongo-driver 的 DocumentStore
type MongoStore struct {
	client *mongo.Client
}

// MongoConfig MongoDB 连接配置
type MongoConfig struct {
	URI string
	// Timeout 连接与 ping 超时，默认 10s
	Timeout time.Duration
}

// NewMongoStore 连接 MongoDB 并 ping 一次，失败返回 UNAVAILABLE。
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, core.NewDomainError(core.ModuleDocStore, core.ErrorCodeInvalidInput, "docstore: mongo uri is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI).SetConnectTimeout(cfg.Timeout))
	if err != nil {
		return nil, core.WrapError(core.ModuleDocStore, core.ErrorCodeUnavailable, "docstore: connect mongo", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, core.WrapError(core.ModuleDocStore, core.ErrorCodeUnavailable, "docstore: ping mongo", err)
	}
	return &MongoStore{client: client}, nil
}

// InsertMany 写入一批文档
func (s *MongoStore) InsertMany(ctx context.Context, database, collection string, docs []map[string]any) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	batch := make([]interface{}, len(docs))
	for i, d := range docs {
		batch[i] = bson.M(d)
	}
	res, err := s.client.Database(database).Collection(collection).InsertMany(ctx, batch)
	n := 0
	if res != nil {
		n = len(res.InsertedIDs)
	}
	if err != nil {
		return n, core.WrapError(core.ModuleDocStore, core.ErrorCodeUnavailable,
			"docstore: insert into "+database+"."+collection, err)
	}
	return n, nil
}

// Close 断开连接
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

var _ DocumentStore = (*MongoStore)(nil)
