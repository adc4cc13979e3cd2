package ingest

import (
	"net/http"
	"time"

	"ipcat/internal/logger"
	"ipcat/internal/utils"
)

// 文档注释：按环境变量组装数据源
// 背景：DATASET_FILE 优先（离线部署），否则 DATASET_URL（缺省为上游 CSV）；OVERLAY_AWS / OVERLAY_CLOUDFLARE 开启时以官方网段覆盖对应归属方。
// 约束：client 为空时使用 FETCH_TIMEOUT（默认 20s）构造的独立客户端。
func ProviderFromEnv(client *http.Client) Provider {
	if client == nil {
		client = &http.Client{Timeout: utils.EnvDuration("FETCH_TIMEOUT", 20*time.Second)}
	}
	var base Provider
	if path := utils.EnvString("DATASET_FILE", ""); path != "" {
		base = &FileProvider{Path: path}
	} else {
		base = NewHTTPProvider(utils.EnvString("DATASET_URL", DefaultDatasetURL), client)
	}
	var overlays []OwnedProvider
	if utils.EnvBool("OVERLAY_AWS", false) {
		overlays = append(overlays, &AWSProvider{URL: utils.EnvString("AWS_RANGES_URL", AWSRangesURL), Client: client})
	}
	if utils.EnvBool("OVERLAY_CLOUDFLARE", false) {
		overlays = append(overlays, &CloudflareProvider{URL: utils.EnvString("CLOUDFLARE_IPV4_URL", CloudflareIPv4URL), Client: client})
	}
	if len(overlays) == 0 {
		logger.L().Debug("provider_config", "name", base.Name())
		return base
	}
	p := &OverlayProvider{Base: base, Overlays: overlays}
	logger.L().Debug("provider_config", "name", p.Name())
	return p
}
