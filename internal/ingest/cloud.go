package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"ipcat/internal/localdb"
)

const (
	AWSRangesURL      = "https://ip-ranges.amazonaws.com/ip-ranges.json"
	CloudflareIPv4URL = "https://www.cloudflare.com/ips-v4"

	awsOwner        = "Amazon AWS"
	awsHome         = "http://www.amazon.com/aws/"
	cloudflareOwner = "Cloudflare Inc"
	cloudflareHome  = "https://www.cloudflare.com/"
)

type awsPrefix struct {
	IPPrefix string `json:"ip_prefix"`
	Region   string `json:"region"`
	Service  string `json:"service"`
}

type awsRanges struct {
	SyncToken  string      `json:"syncToken"`
	CreateDate string      `json:"createDate"`
	Prefixes   []awsPrefix `json:"prefixes"`
}

// 文档注释：AWS 官方网段
// 背景：仅取 EC2 服务的 IPv4 前缀（托管主机所在网段）；IPv6 在 ipv6_prefixes 中，天然被忽略。
type AWSProvider struct {
	URL    string
	Client *http.Client
}

func (p *AWSProvider) Name() string  { return "aws" }
func (p *AWSProvider) Owner() string { return awsOwner }

func (p *AWSProvider) Fetch(ctx context.Context) ([]localdb.Record, error) {
	url := p.URL
	if url == "" {
		url = AWSRangesURL
	}
	body, err := httpGet(ctx, p.Client, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	var doc awsRanges
	if err := json.NewDecoder(body).Decode(&doc); err != nil {
		if ctx.Err() != nil || errors.Is(err, errBodyTooLarge) {
			return nil, &ProviderUnavailableError{Source: url, Err: err}
		}
		return nil, &localdb.MalformedDatasetError{Reason: "aws ip-ranges: " + err.Error()}
	}
	var rows []localdb.Record
	for i, pr := range doc.Prefixes {
		if pr.Service != "EC2" {
			continue
		}
		start, end, err := localdb.CIDRRange(pr.IPPrefix)
		if err != nil {
			return nil, &localdb.MalformedDatasetError{Where: "prefix", Line: i, Reason: err.Error()}
		}
		rows = append(rows, localdb.Record{Start: start, End: end, Owner: awsOwner, URL: awsHome})
	}
	return rows, nil
}

// CloudflareProvider：按行解析 Cloudflare 发布的 IPv4 CIDR 列表
type CloudflareProvider struct {
	URL    string
	Client *http.Client
}

func (p *CloudflareProvider) Name() string  { return "cloudflare" }
func (p *CloudflareProvider) Owner() string { return cloudflareOwner }

func (p *CloudflareProvider) Fetch(ctx context.Context) ([]localdb.Record, error) {
	url := p.URL
	if url == "" {
		url = CloudflareIPv4URL
	}
	body, err := httpGet(ctx, p.Client, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	var rows []localdb.Record
	sc := bufio.NewScanner(body)
	line := 0
	for sc.Scan() {
		line++
		s := sc.Text()
		if i := strings.IndexByte(s, '#'); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		start, end, err := localdb.CIDRRange(s)
		if err != nil {
			// 读取中断时最后一行可能不完整
			if serr := sc.Err(); serr != nil {
				return nil, &ProviderUnavailableError{Source: url, Err: serr}
			}
			return nil, &localdb.MalformedDatasetError{Where: "line", Line: line, Reason: err.Error()}
		}
		rows = append(rows, localdb.Record{Start: start, End: end, Owner: cloudflareOwner, URL: cloudflareHome})
	}
	if err := sc.Err(); err != nil {
		return nil, &ProviderUnavailableError{Source: url, Err: err}
	}
	return rows, nil
}

// 文档注释：基础数据集 + 权威网段覆盖
// 背景：云厂商网段变化频繁，以其官方列表为准：先删除基础数据中同一归属方的全部行，再追加官方行。
// 约束：任一来源失败则整体失败，不产生部分覆盖的结果。
type OverlayProvider struct {
	Base     Provider
	Overlays []OwnedProvider
}

func (o *OverlayProvider) Name() string {
	names := []string{o.Base.Name()}
	for _, ov := range o.Overlays {
		names = append(names, ov.Name())
	}
	return strings.Join(names, "+")
}

func (o *OverlayProvider) Fetch(ctx context.Context) ([]localdb.Record, error) {
	if o.Base == nil {
		return nil, errors.New("overlay provider without base")
	}
	rows, err := o.Base.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	for _, ov := range o.Overlays {
		add, err := ov.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		owner := ov.Owner()
		kept := make([]localdb.Record, 0, len(rows)+len(add))
		for _, r := range rows {
			if r.Owner != owner {
				kept = append(kept, r)
			}
		}
		rows = append(kept, add...)
	}
	return rows, nil
}
