// Package registry 负责在模型仓库（saved_models）中定位最新一次训练产出的模型产物。
//
// 仓库目录结构：
//
//	saved_models/
//	  0/transformer/transformer.json
//	  0/target_encoder/target_encoder.json
//	  0/model/model.json
//	  1/...
//
// 版本目录以非负整数命名，最大者为最新版本。
package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rushteam/insurekit/core"
)

// 默认目录与文件名
const (
	DefaultRegistryDir = "saved_models"

	TransformerDirName   = "transformer"
	TargetEncoderDirName = "target_encoder"
	ModelDirName         = "model"

	TransformerFileName   = "transformer.json"
	TargetEncoderFileName = "target_encoder.json"
	ModelFileName         = "model.json"
)

// Resolver 是批量预测依赖的最小接口：返回最新版本各产物的路径。
type Resolver interface {
	LatestDir(ctx context.Context) (string, error)
	LatestTransformerPath(ctx context.Context) (string, error)
	LatestTargetEncoderPath(ctx context.Context) (string, error)
	LatestModelPath(ctx context.Context) (string, error)
}

// Paths 是同一版本下三个产物的路径
type Paths struct {
	Dir           string
	Transformer   string
	TargetEncoder string
	Model         string
}

// ModelResolver 基于目录扫描的模型仓库解析器，可选地使用 core.Store 中的 latest 指针。
type ModelResolver struct {
	registry string

	pointer    core.Store
	pointerKey string
}

// Option 是 ModelResolver 的可选配置
type Option func(*ModelResolver)

// WithPointer 使用 store 中 key 保存的版本号作为最新版本；指针缺失时退回目录扫描。
func WithPointer(store core.Store, key string) Option {
	return func(r *ModelResolver) {
		r.pointer = store
		r.pointerKey = key
	}
}

// NewModelResolver 创建模型仓库解析器，registry 为空时使用 DefaultRegistryDir。
func NewModelResolver(registry string, opts ...Option) *ModelResolver {
	if registry == "" {
		registry = DefaultRegistryDir
	}
	r := &ModelResolver{registry: registry}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry 返回仓库根目录
func (r *ModelResolver) Registry() string { return r.registry }

// Versions 返回仓库中所有版本号（升序）。仓库目录不存在时返回空列表。
func (r *ModelResolver) Versions(ctx context.Context) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(r.registry)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", r.registry, err)
	}
	versions := make([]int, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		v, ok := parseVersion(e.Name())
		if !ok {
			continue
		}
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return versions, nil
}

// LatestVersion 返回最新版本号；没有任何版本时返回 ErrModelNotFound。
func (r *ModelResolver) LatestVersion(ctx context.Context) (int, error) {
	if r.pointer != nil {
		v, err := r.pointerVersion(ctx)
		if err == nil {
			return v, nil
		}
		if !core.IsStoreNotFound(err) {
			return 0, err
		}
	}
	versions, err := r.Versions(ctx)
	if err != nil {
		return 0, err
	}
	if len(versions) == 0 {
		return 0, core.WrapError(core.ModuleRegistry, core.ErrorCodeNotFound,
			"registry: no model version under "+r.registry, core.ErrModelNotFound)
	}
	return versions[len(versions)-1], nil
}

// LatestDir 返回最新版本目录
func (r *ModelResolver) LatestDir(ctx context.Context) (string, error) {
	v, err := r.LatestVersion(ctx)
	if err != nil {
		return "", err
	}
	return r.versionDir(v), nil
}

// LatestTransformerPath 返回最新版本的特征变换器路径
func (r *ModelResolver) LatestTransformerPath(ctx context.Context) (string, error) {
	return r.latestArtifact(ctx, "transformer", TransformerDirName, TransformerFileName)
}

// LatestTargetEncoderPath 返回最新版本的 target encoder 路径
func (r *ModelResolver) LatestTargetEncoderPath(ctx context.Context) (string, error) {
	return r.latestArtifact(ctx, "target encoder", TargetEncoderDirName, TargetEncoderFileName)
}

// LatestModelPath 返回最新版本的模型路径
func (r *ModelResolver) LatestModelPath(ctx context.Context) (string, error) {
	return r.latestArtifact(ctx, "model", ModelDirName, ModelFileName)
}

// LatestPaths 一次性返回最新版本的全部产物路径
func (r *ModelResolver) LatestPaths(ctx context.Context) (*Paths, error) {
	dir, err := r.LatestDir(ctx)
	if err != nil {
		return nil, err
	}
	return pathsIn(dir), nil
}

// LatestSaveDirPath 返回下一次训练产出应写入的目录：仓库为空时为 <registry>/0，否则为最新版本 + 1。
// 只看目录扫描结果，不受 latest 指针影响。
func (r *ModelResolver) LatestSaveDirPath(ctx context.Context) (string, error) {
	versions, err := r.Versions(ctx)
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return r.versionDir(0), nil
	}
	return r.versionDir(versions[len(versions)-1] + 1), nil
}

// LatestSavePaths 返回下一个版本目录下的全部产物路径
func (r *ModelResolver) LatestSavePaths(ctx context.Context) (*Paths, error) {
	dir, err := r.LatestSaveDirPath(ctx)
	if err != nil {
		return nil, err
	}
	return pathsIn(dir), nil
}

// Promote 把 latest 指针指向 version（版本目录必须存在）。没有配置指针存储时返回 NOT_SUPPORTED。
func (r *ModelResolver) Promote(ctx context.Context, version int) error {
	if r.pointer == nil {
		return core.NewDomainError(core.ModuleRegistry, core.ErrorCodeNotSupported,
			"registry: promote requires a pointer store")
	}
	dir := r.versionDir(version)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return core.WrapError(core.ModuleRegistry, core.ErrorCodeNotFound,
			fmt.Sprintf("registry: version %d does not exist", version), err)
	}
	return r.pointer.Set(ctx, r.pointerKey, []byte(strconv.Itoa(version)))
}

func (r *ModelResolver) latestArtifact(ctx context.Context, what, dirName, fileName string) (string, error) {
	dir, err := r.LatestDir(ctx)
	if err != nil {
		if core.IsNotFound(err) {
			return "", core.WrapError(core.ModuleRegistry, core.ErrorCodeNotFound,
				what+" is not available", err)
		}
		return "", err
	}
	return filepath.Join(dir, dirName, fileName), nil
}

func (r *ModelResolver) pointerVersion(ctx context.Context) (int, error) {
	raw, err := r.pointer.Get(ctx, r.pointerKey)
	if err != nil {
		return 0, err
	}
	v, ok := parseVersion(strings.TrimSpace(string(raw)))
	if !ok {
		return 0, core.NewDomainError(core.ModuleRegistry, core.ErrorCodeInvalidInput,
			fmt.Sprintf("registry: pointer %s holds invalid version %q", r.pointerKey, raw))
	}
	return v, nil
}

func (r *ModelResolver) versionDir(v int) string {
	return filepath.Join(r.registry, strconv.Itoa(v))
}

func pathsIn(dir string) *Paths {
	return &Paths{
		Dir:           dir,
		Transformer:   filepath.Join(dir, TransformerDirName, TransformerFileName),
		TargetEncoder: filepath.Join(dir, TargetEncoderDirName, TargetEncoderFileName),
		Model:         filepath.Join(dir, ModelDirName, ModelFileName),
	}
}

func parseVersion(name string) (int, bool) {
	if name == "" {
		return 0, false
	}
	for _, c := range name {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	v, err := strconv.Atoi(name)
	if err != nil {
		return 0, false
	}
	return v, true
}

var _ Resolver = (*ModelResolver)(nil)
