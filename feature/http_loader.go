package feature

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rushteam/insurekit/core"
)

// httpFetcher 通过 HTTP GET 下载模型产物（如模型服务暴露的 transformer.json）
type httpFetcher struct {
	client *http.Client
}

func newHTTPFetcher(timeout time.Duration) httpFetcher {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return httpFetcher{client: &http.Client{Timeout: timeout}}
}

func (f httpFetcher) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, core.WrapError(core.ModuleFeature, core.ErrorCodeInvalidInput, "feature: build request "+url, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, core.WrapError(core.ModuleFeature, core.ErrorCodeUnavailable, "feature: fetch "+url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, core.NewDomainError(core.ModuleFeature, core.ErrorCodeNotFound, "feature: artifact not found at "+url)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, core.NewDomainError(core.ModuleFeature, core.ErrorCodeUnavailable,
			fmt.Sprintf("feature: fetch %s: status=%d, body=%s", url, resp.StatusCode, body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.WrapError(core.ModuleFeature, core.ErrorCodeUnavailable, "feature: read response "+url, err)
	}
	return data, nil
}

// HTTPTransformerLoader 从 HTTP 接口加载特征变换器
//
// 用法：
//
//	loader := feature.NewHTTPTransformerLoader(5 * time.Second)
//	t, err := loader.Load(ctx, "http://models.internal/insurance/3/transformer.json")
type HTTPTransformerLoader struct {
	httpFetcher
}

// NewHTTPTransformerLoader 创建 HTTP 特征变换器加载器，timeout 为 0 时使用 10s
func NewHTTPTransformerLoader(timeout time.Duration) *HTTPTransformerLoader {
	return &HTTPTransformerLoader{newHTTPFetcher(timeout)}
}

// NewHTTPTransformerLoaderWithClient 使用自定义 HTTP 客户端创建加载器
func NewHTTPTransformerLoaderWithClient(client *http.Client) *HTTPTransformerLoader {
	return &HTTPTransformerLoader{httpFetcher{client: client}}
}

func (l *HTTPTransformerLoader) Load(ctx context.Context, url string) (*Transformer, error) {
	data, err := l.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return ParseTransformer(data)
}

// HTTPEncoderLoader 从 HTTP 接口加载 target encoder
type HTTPEncoderLoader struct {
	httpFetcher
}

// NewHTTPEncoderLoader 创建 HTTP target encoder 加载器
func NewHTTPEncoderLoader(timeout time.Duration) *HTTPEncoderLoader {
	return &HTTPEncoderLoader{newHTTPFetcher(timeout)}
}

func (l *HTTPEncoderLoader) Load(ctx context.Context, url string) (*LabelEncoder, error) {
	data, err := l.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return ParseLabelEncoder(data)
}

var (
	_ TransformerLoader = (*HTTPTransformerLoader)(nil)
	_ EncoderLoader     = (*HTTPEncoderLoader)(nil)
)
