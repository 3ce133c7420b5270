package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RecoveryAshes/linkscout/internal/models"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// ErrBrowserCrashed 浏览器崩溃或连接断开
var ErrBrowserCrashed = errors.New("浏览器崩溃")

// DynamicStrategy 动态获取策略(使用Rod)
// 在浏览器中加载页面并执行脚本,提取渲染后的链接
type DynamicStrategy struct {
	opts FetchOptions
}

// NewDynamicStrategy 创建动态获取策略
func NewDynamicStrategy(opts FetchOptions) *DynamicStrategy {
	return &DynamicStrategy{opts: opts.withDefaults()}
}

// Name 实现 Strategy
func (d *DynamicStrategy) Name() models.CrawlMode {
	return models.ModeDynamic
}

// Open 启动浏览器并创建标签页池
func (d *DynamicStrategy) Open(ctx context.Context) (LinkFetcher, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := launcher.New().Headless(d.opts.Headless)
	if d.opts.InsecureTLS {
		l = l.Set("ignore-certificate-errors")
		d.opts.Logger.Warn().Msg("浏览器已配置为跳过HTTPS证书验证")
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}
	d.opts.Logger.Debug().Str("control_url", controlURL).Int("max_tabs", d.opts.MaxTabs).Msg("浏览器已启动")

	return &dynamicFetcher{
		launcher: l,
		browser:  browser,
		pool:     NewPagePool(browser, d.opts.MaxTabs, d.opts.Monitor, d.opts.Logger),
		opts:     d.opts,
	}, nil
}

// dynamicFetcher 单次爬取内的浏览器会话
type dynamicFetcher struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	pool     *PagePool
	opts     FetchOptions
}

// FetchLinks 实现 LinkFetcher
func (f *dynamicFetcher) FetchLinks(ctx context.Context, address string) (links []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			f.opts.Logger.Error().Str("url", address).Msgf("页面获取panic: %v", r)
			links = nil
			err = &models.FetchError{
				URL:    address,
				Reason: models.ReasonNetwork,
				Err:    fmt.Errorf("%w: %v", ErrBrowserCrashed, r),
			}
		}
	}()

	page, err := f.pool.AcquirePage(ctx)
	if err != nil {
		return nil, models.NewFetchError(address, err)
	}
	defer f.pool.ReleasePage(page)

	pageCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout+f.opts.RenderWait)
	defer cancel()
	p := page.Context(pageCtx)

	restore, err := f.applyHeaders(p)
	if err != nil {
		return nil, models.NewFetchError(address, err)
	}
	defer restore()

	status := watchDocumentStatus(p)

	if err := p.Navigate(address); err != nil {
		return nil, models.NewFetchError(address, fmt.Errorf("导航失败: %w", err))
	}
	if err := p.WaitLoad(); err != nil {
		return nil, models.NewFetchError(address, fmt.Errorf("等待页面加载失败: %w", err))
	}

	if code := status(); code >= 400 {
		return nil, &models.FetchError{
			URL:        address,
			Reason:     models.ReasonNetwork,
			StatusCode: code,
			Err:        fmt.Errorf("HTTP %d", code),
		}
	}

	// 等待页面脚本渲染
	if f.opts.RenderWait > 0 {
		timer := time.NewTimer(f.opts.RenderWait)
		select {
		case <-timer.C:
		case <-pageCtx.Done():
			timer.Stop()
			return nil, models.NewFetchError(address, pageCtx.Err())
		}
	}

	links, err = extractFromPage(p)
	if err != nil {
		fe := models.NewFetchError(address, err)
		if fe.Reason == models.ReasonNetwork {
			fe.Reason = models.ReasonParse
		}
		return nil, fe
	}
	return links, nil
}

// applyHeaders 设置自定义头部和UA,返回恢复函数
func (f *dynamicFetcher) applyHeaders(p *rod.Page) (func(), error) {
	headers := f.opts.requestHeaders()

	userAgent := headers.Get("User-Agent")
	headers.Del("User-Agent")
	// 压缩协商交给浏览器
	headers.Del("Accept-Encoding")
	if userAgent != "" {
		if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: userAgent}); err != nil {
			return nil, fmt.Errorf("设置User-Agent失败: %w", err)
		}
	}

	if len(headers) == 0 {
		return func() {}, nil
	}

	dict := make([]string, 0, len(headers)*2)
	for name, values := range headers {
		if len(values) > 0 {
			dict = append(dict, name, values[0])
		}
	}
	restore, err := p.SetExtraHeaders(dict)
	if err != nil {
		return nil, fmt.Errorf("设置HTTP头部失败: %w", err)
	}
	return restore, nil
}

// watchDocumentStatus 监听主文档响应,返回读取状态码的函数(未收到时为0)
func watchDocumentStatus(p *rod.Page) func() int {
	var (
		mu     sync.Mutex
		status int
	)

	wait := p.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument || e.Response == nil {
			return false
		}
		mu.Lock()
		status = e.Response.Status
		mu.Unlock()
		return true
	})
	go wait()

	return func() int {
		mu.Lock()
		defer mu.Unlock()
		return status
	}
}

// Close 关闭标签页池和浏览器
func (f *dynamicFetcher) Close() error {
	var errs []error
	if err := f.pool.Close(); err != nil {
		errs = append(errs, fmt.Errorf("关闭标签页池失败: %w", err))
	}
	if err := f.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("关闭浏览器失败: %w", err))
	}
	f.launcher.Cleanup()
	f.opts.Logger.Debug().Msg("浏览器已关闭")
	return errors.Join(errs...)
}
