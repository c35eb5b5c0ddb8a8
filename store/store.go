// Package store 提供 core.Store 的实现。
//
// 注意：此包只包含实现，接口定义在 core 包。
//
// 示例：
//
//	var s core.Store = store.NewMemoryStore()
//	r, err := store.NewRedisStore(ctx, store.RedisConfig{Addr: "localhost:6379"})
package store
