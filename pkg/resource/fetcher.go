// Package resource 负责按定位符取回原始字节
//
// 帧图片和 manifest 都是"定位符 → 字节"的读取：
//   - http:// 与 https:// 走 HTTP GET
//   - embed:data/... 读取内置数据
//   - 其他字符串视为本地文件路径
//
// Fetcher 不做缓存；缓存由 texture.Cache 负责。
package resource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gonewx/gekmascot/pkg/embedded"
)

// EmbedScheme 内置数据定位符前缀
const EmbedScheme = "embed:"

// maxBodySize 单个资源的字节上限，防止异常响应占满内存
const maxBodySize = 32 << 20

// ErrNotFound 资源不存在（HTTP 404 或文件缺失）
var ErrNotFound = errors.New("resource not found")

// Fetcher 读取一个定位符对应的全部字节
type Fetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// FetcherFunc 函数适配器
type FetcherFunc func(ctx context.Context, locator string) ([]byte, error)

// Fetch 实现 Fetcher
func (f FetcherFunc) Fetch(ctx context.Context, locator string) ([]byte, error) {
	return f(ctx, locator)
}

// HTTPFetcher 通过 HTTP GET 读取资源
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher 创建带总超时的 HTTP Fetcher
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}}
}

// Fetch 实现 Fetcher
func (f *HTTPFetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", locator, err)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", locator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", locator, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch %s: unexpected status %s", locator, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", locator, err)
	}
	if len(data) > maxBodySize {
		return nil, fmt.Errorf("resource %s exceeds %d bytes", locator, maxBodySize)
	}
	return data, nil
}

// FileFetcher 读取本地文件
type FileFetcher struct{}

// Fetch 实现 Fetcher
func (FileFetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(strings.TrimPrefix(locator, "file://"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", locator, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", locator, err)
	}
	return data, nil
}

// EmbedFetcher 读取内置数据（embed:data/...）
type EmbedFetcher struct{}

// Fetch 实现 Fetcher
func (EmbedFetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := strings.TrimPrefix(locator, EmbedScheme)
	if !embedded.Exists(path) {
		if !embedded.IsInitialized() {
			return nil, embedded.ErrNotInitialized
		}
		return nil, fmt.Errorf("%s: %w", locator, ErrNotFound)
	}
	return embedded.ReadFile(path)
}

// Router 按定位符的 scheme 分派到具体 Fetcher
type Router struct {
	HTTP  Fetcher
	File  Fetcher
	Embed Fetcher
	// BaseURL 非空时，以 "/" 开头的定位符相对它解析后走 HTTP
	BaseURL string
}

// NewRouter 创建默认路由
func NewRouter(httpTimeout time.Duration, baseURL string) *Router {
	return &Router{
		HTTP:    NewHTTPFetcher(httpTimeout),
		File:    FileFetcher{},
		Embed:   EmbedFetcher{},
		BaseURL: baseURL,
	}
}

// Resolve 返回实际使用的定位符
func (r *Router) Resolve(locator string) string {
	if r.BaseURL != "" && strings.HasPrefix(locator, "/") {
		base, err := url.Parse(r.BaseURL)
		if err == nil {
			if ref, err := url.Parse(locator); err == nil {
				return base.ResolveReference(ref).String()
			}
		}
	}
	return locator
}

// Fetch 实现 Fetcher
func (r *Router) Fetch(ctx context.Context, locator string) ([]byte, error) {
	locator = r.Resolve(locator)
	switch {
	case strings.HasPrefix(locator, "http://"), strings.HasPrefix(locator, "https://"):
		return r.HTTP.Fetch(ctx, locator)
	case strings.HasPrefix(locator, EmbedScheme):
		return r.Embed.Fetch(ctx, locator)
	default:
		return r.File.Fetch(ctx, locator)
	}
}
