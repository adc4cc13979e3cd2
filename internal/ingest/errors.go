package ingest

import (
	"fmt"
	"time"
)

// ProviderUnavailableError：数据源不可达、返回非 2xx 或读取中断
type ProviderUnavailableError struct {
	Source string
	Err    error
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("dataset provider %s unavailable: %v", e.Source, e.Err)
}

func (e *ProviderUnavailableError) Unwrap() error { return e.Err }

// RefreshTimeoutError：刷新超过 REFRESH_TIMEOUT 仍未完成，当前表保持不变
type RefreshTimeoutError struct {
	Timeout time.Duration
	Err     error
}

func (e *RefreshTimeoutError) Error() string {
	return fmt.Sprintf("dataset refresh timed out after %s: %v", e.Timeout, e.Err)
}

func (e *RefreshTimeoutError) Unwrap() error { return e.Err }
