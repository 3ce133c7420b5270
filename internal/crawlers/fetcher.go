package crawlers

import (
	"context"
	"net/http"
	"time"

	"github.com/RecoveryAshes/linkscout/internal/models"
	"github.com/rs/zerolog"
)

// LinkFetcher 获取单个页面上的超链接
type LinkFetcher interface {
	// FetchLinks 返回页面中 <a href> 的原始值,按文档顺序
	// 失败时返回 *models.FetchError
	FetchLinks(ctx context.Context, address string) ([]string, error)

	// Close 释放底层资源(HTTP连接、浏览器进程)
	Close() error
}

// Strategy 页面获取策略
// 每次爬取开始时 Open 一次,结束时关闭返回的 LinkFetcher
type Strategy interface {
	Name() models.CrawlMode
	Open(ctx context.Context) (LinkFetcher, error)
}

// FetchOptions 两种获取策略共用的选项
type FetchOptions struct {
	// Timeout 单个页面的超时时间
	Timeout time.Duration

	// RenderWait 动态模式下页面加载后的额外等待
	RenderWait time.Duration

	Headless    bool
	InsecureTLS bool

	// MaxBodySize 静态模式响应体上限(字节),0 表示使用默认值
	MaxBodySize int

	UserAgent string

	// Headers 每次请求附加的HTTP头部,可为nil
	Headers models.HeaderProvider

	// MaxTabs 动态模式标签页上限
	MaxTabs int

	// Monitor 动态模式用于限制标签页创建,可为nil
	Monitor *ResourceMonitor

	Logger zerolog.Logger
}

// 默认值
const (
	DefaultTimeout     = 15 * time.Second
	DefaultMaxBodySize = 10 * 1024 * 1024
)

func (o FetchOptions) withDefaults() FetchOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxBodySize <= 0 {
		o.MaxBodySize = DefaultMaxBodySize
	}
	if o.MaxTabs < 1 {
		o.MaxTabs = 1
	}
	return o
}

// requestHeaders 从头部提供者取当前请求头,失败时记录警告并返回空头部
// UserAgent 非空时覆盖头部中的 User-Agent
func (o FetchOptions) requestHeaders() http.Header {
	headers := http.Header{}
	if o.Headers != nil {
		h, err := o.Headers.GetHeaders()
		if err != nil {
			o.Logger.Warn().Err(err).Msg("获取HTTP头部失败,使用空头部")
		} else if h != nil {
			headers = h.Clone()
		}
	}
	if o.UserAgent != "" {
		headers.Set("User-Agent", o.UserAgent)
	}
	return headers
}
