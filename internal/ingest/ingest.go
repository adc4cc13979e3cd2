// 包 ingest：数据集拉取（CSV/云厂商网段）与范围表刷新
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"ipcat/internal/localdb"
)

const DefaultDatasetURL = "https://raw.githubusercontent.com/client9/ipcat/master/datacenters.csv"

// maxResponseBytes 为单个远端响应体上限；超出时整体失败而不是截断
var maxResponseBytes int64 = 64 << 20

var errBodyTooLarge = errors.New("response body exceeds size limit")

// 文档注释：数据集提供方（统一契约）
// 背景：刷新器只依赖“按需返回一批行”，拉取方式（HTTP/文件/数据库快照）由实现决定。
// 约束：Fetch 需遵守 ctx 取消与超时；连接或读取失败返回 *ProviderUnavailableError，数据非法返回 *localdb.MalformedDatasetError。
type Provider interface {
	Name() string
	Fetch(ctx context.Context) ([]localdb.Record, error)
}

// OwnedProvider 的所有行都归属同一个 Owner，可用于 OverlayProvider 整体替换该归属方
type OwnedProvider interface {
	Provider
	Owner() string
}

// HTTPProvider：通过 HTTP 拉取 ipcat CSV
type HTTPProvider struct {
	URL    string
	Client *http.Client
}

func NewHTTPProvider(url string, client *http.Client) *HTTPProvider {
	if url == "" {
		url = DefaultDatasetURL
	}
	return &HTTPProvider{URL: url, Client: client}
}

func (p *HTTPProvider) Name() string { return p.URL }

func (p *HTTPProvider) Fetch(ctx context.Context) ([]localdb.Record, error) {
	body, err := httpGet(ctx, p.Client, p.URL)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return classifyParse(p.URL, body)
}

// FileProvider：读取本地 CSV，适用于离线部署与 CLI
type FileProvider struct {
	Path string
}

func (p *FileProvider) Name() string { return "file:" + p.Path }

func (p *FileProvider) Fetch(ctx context.Context) ([]localdb.Record, error) {
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, &ProviderUnavailableError{Source: p.Name(), Err: err}
	}
	defer f.Close()
	return classifyParse(p.Name(), f)
}

// classifyParse 区分数据非法与读取中断
func classifyParse(source string, r io.Reader) ([]localdb.Record, error) {
	rows, err := ParseCSV(r)
	if err != nil {
		var mde *localdb.MalformedDatasetError
		if errors.As(err, &mde) {
			return nil, err
		}
		return nil, &ProviderUnavailableError{Source: source, Err: err}
	}
	return rows, nil
}

// 文档注释：带上下文的 GET 请求
// 背景：所有远端数据源共用；非 2xx 时读取少量响应体写入错误信息便于排查。
// 返回：限制大小的响应体（调用方负责关闭），超出上限时读取返回 errBodyTooLarge；失败统一为 *ProviderUnavailableError。
func httpGet(ctx context.Context, client *http.Client, url string) (io.ReadCloser, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &ProviderUnavailableError{Source: url, Err: fmt.Errorf("build request: %w", err)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &ProviderUnavailableError{Source: url, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &ProviderUnavailableError{
			Source: url,
			Err:    fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
		}
	}
	return &cappedBody{r: io.LimitReader(resp.Body, maxResponseBytes+1), max: maxResponseBytes, Closer: resp.Body}, nil
}

// cappedBody 最多交出 max 字节；读到第 max+1 字节时返回 errBodyTooLarge，避免截断的数据被当作完整数据集解析
type cappedBody struct {
	r   io.Reader
	n   int64
	max int64
	io.Closer
}

func (b *cappedBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	b.n += int64(n)
	if b.n > b.max {
		n -= int(b.n - b.max)
		if n < 0 {
			n = 0
		}
		b.n = b.max
		return n, errBodyTooLarge
	}
	return n, err
}
