package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

// ErrPoolClosed 标签页池已关闭
var ErrPoolClosed = errors.New("标签页池已关闭")

const (
	// 清理失败达到该次数的标签页会被销毁
	maxCleanFailures = 2

	acquireRetryInterval = 500 * time.Millisecond
)

// PagePool 标签页池
// 按需创建标签页(不超过maxTabs),用完归还复用
type PagePool struct {
	browser *rod.Browser
	monitor *ResourceMonitor
	logger  zerolog.Logger
	maxTabs int

	available chan *rod.Page

	mu            sync.Mutex
	pages         []*rod.Page
	cleanFailures map[*rod.Page]int
	closed        bool
}

// NewPagePool 创建标签页池,monitor 可为nil
func NewPagePool(browser *rod.Browser, maxTabs int, monitor *ResourceMonitor, logger zerolog.Logger) *PagePool {
	if maxTabs < 1 {
		maxTabs = 1
	}
	return &PagePool{
		browser:       browser,
		monitor:       monitor,
		logger:        logger,
		maxTabs:       maxTabs,
		available:     make(chan *rod.Page, maxTabs),
		cleanFailures: make(map[*rod.Page]int),
	}
}

// MaxSize 当前允许的标签页上限
func (pp *PagePool) MaxSize() int {
	if pp.monitor == nil {
		return pp.maxTabs
	}
	return min(pp.maxTabs, pp.monitor.CalculateMaxWorkers())
}

// CurrentSize 已创建的标签页数
func (pp *PagePool) CurrentSize() int {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return len(pp.pages)
}

// AcquirePage 获取一个标签页,无可用且已达上限时阻塞
func (pp *PagePool) AcquirePage(ctx context.Context) (*rod.Page, error) {
	select {
	case page, ok := <-pp.available:
		if !ok {
			return nil, ErrPoolClosed
		}
		return page, nil
	default:
	}

	ticker := time.NewTicker(acquireRetryInterval)
	defer ticker.Stop()

	for {
		if page, err := pp.tryCreate(); page != nil || err != nil {
			return page, err
		}

		// 标签页被销毁后不会再归还,定期重试创建
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case page, ok := <-pp.available:
			if !ok {
				return nil, ErrPoolClosed
			}
			return page, nil
		case <-ticker.C:
		}
	}
}

// tryCreate 未达上限且资源允许时创建新标签页,否则返回 (nil, nil)
func (pp *PagePool) tryCreate() (*rod.Page, error) {
	maxSize := pp.MaxSize()

	pp.mu.Lock()
	defer pp.mu.Unlock()

	if pp.closed {
		return nil, ErrPoolClosed
	}
	// 至少保证一个标签页,否则无法推进
	if len(pp.pages) > 0 {
		if len(pp.pages) >= maxSize {
			return nil, nil
		}
		if pp.monitor != nil {
			if ok, reason := pp.monitor.CheckResourceAvailability(); !ok {
				pp.logger.Warn().Msgf("资源不足,暂不创建新标签页: %s", reason)
				return nil, nil
			}
		}
	}

	page, err := pp.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("%w: 创建标签页失败: %v", ErrBrowserCrashed, err)
	}
	pp.pages = append(pp.pages, page)
	pp.logger.Debug().Msgf("创建新标签页,当前标签页数: %d, 最大限制: %d", len(pp.pages), maxSize)
	return page, nil
}

// ReleasePage 清理并归还标签页
// 清理多次失败或内存紧张时直接销毁
func (pp *PagePool) ReleasePage(page *rod.Page) {
	if page == nil {
		return
	}

	if err := cleanPage(page); err != nil {
		pp.mu.Lock()
		pp.cleanFailures[page]++
		failures := pp.cleanFailures[page]
		pp.mu.Unlock()

		pp.logger.Debug().Err(err).Msgf("清理标签页状态失败 (第%d次)", failures)
		if failures >= maxCleanFailures {
			pp.destroyPage(page)
			return
		}
	} else {
		pp.mu.Lock()
		delete(pp.cleanFailures, page)
		pp.mu.Unlock()
	}

	if pp.monitor != nil {
		if shrink, target := pp.monitor.ShouldScaleDown(pp.CurrentSize()); shrink && pp.CurrentSize() > target {
			pp.destroyPage(page)
			return
		}
	}

	pp.mu.Lock()
	defer pp.mu.Unlock()
	if pp.closed {
		return
	}
	select {
	case pp.available <- page:
	default:
		go pp.destroyPage(page)
	}
}

// cleanPage 清除存储状态,避免页面间相互影响
func cleanPage(page *rod.Page) error {
	_, err := page.Evaluate(rod.Eval(`() => {
		try { if (window.localStorage) localStorage.clear(); } catch (e) {}
		try { if (window.sessionStorage) sessionStorage.clear(); } catch (e) {}
		return true;
	}`))
	if err != nil {
		return fmt.Errorf("清理标签页状态失败: %w", err)
	}
	return nil
}

// destroyPage 关闭并移除标签页
func (pp *PagePool) destroyPage(page *rod.Page) {
	pp.mu.Lock()
	for i, p := range pp.pages {
		if p == page {
			pp.pages = append(pp.pages[:i], pp.pages[i+1:]...)
			break
		}
	}
	delete(pp.cleanFailures, page)
	remaining := len(pp.pages)
	pp.mu.Unlock()

	if err := page.Close(); err != nil {
		pp.logger.Debug().Err(err).Msg("关闭标签页失败")
	}
	pp.logger.Debug().Msgf("销毁标签页,当前标签页数: %d", remaining)
}

// Close 关闭所有标签页
func (pp *PagePool) Close() error {
	pp.mu.Lock()
	if pp.closed {
		pp.mu.Unlock()
		return nil
	}
	pp.closed = true
	pages := pp.pages
	pp.pages = nil
	close(pp.available)
	pp.mu.Unlock()

	var errs []error
	for _, page := range pages {
		if err := page.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
