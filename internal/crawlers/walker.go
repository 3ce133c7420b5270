package crawlers

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/RecoveryAshes/linkscout/internal/models"
	"github.com/rs/zerolog"
)

// Result 一次爬取的结果
type Result struct {
	// Seed 规范化后的种子地址
	Seed string `json:"seed"`

	// Pages 按访问顺序排列的地址,种子在首位
	Pages []string `json:"pages"`

	// Failures 获取失败的页面(仍计入 Pages)
	Failures []models.PageFailure `json:"failures"`

	Stats models.CrawlStats `json:"stats"`

	// Cancelled 为 true 表示因取消提前结束,Pages 为部分结果
	Cancelled bool `json:"cancelled"`
}

// Walker 深度优先遍历同源页面
type Walker struct {
	strategy   Strategy
	pageBudget int
	workers    int
	logger     zerolog.Logger
	onVisit    func(models.FrontierItem)
}

// WalkerOption Walker 配置项
type WalkerOption func(*Walker)

// WithPageBudget 设置单次爬取最多访问的页面数
func WithPageBudget(n int) WalkerOption {
	return func(w *Walker) { w.pageBudget = n }
}

// WithWorkers 设置并发获取页面的worker数,1 为单线程遍历
func WithWorkers(n int) WalkerOption {
	return func(w *Walker) {
		if n > 0 {
			w.workers = n
		}
	}
}

// WithLogger 设置结构化日志
func WithLogger(logger zerolog.Logger) WalkerOption {
	return func(w *Walker) { w.logger = logger }
}

// WithVisitHook 每访问一个页面调用一次,可能在多个goroutine中并发调用
func WithVisitHook(fn func(models.FrontierItem)) WalkerOption {
	return func(w *Walker) { w.onVisit = fn }
}

// NewWalker 创建遍历器
func NewWalker(strategy Strategy, opts ...WalkerOption) *Walker {
	w := &Walker{
		strategy:   strategy,
		pageBudget: models.DefaultPageBudget,
		workers:    1,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Crawl 从种子出发遍历 maxDepth 层以内的同源页面
//
// 单个页面获取失败只记录在 Result.Failures 中,不会中断遍历。
// ctx 取消时返回已访问的部分结果并置 Cancelled,错误为 nil。
// 种子无效返回包装 models.ErrInvalidSeed 的错误。
func (w *Walker) Crawl(ctx context.Context, seed string, maxDepth int) (*Result, error) {
	seedURL, err := NormalizeSeed(seed)
	if err != nil {
		return nil, err
	}
	if maxDepth < 0 {
		return nil, fmt.Errorf("%w: 最大深度不能为负数 (%d)", models.ErrInvalidArgument, maxDepth)
	}
	if w.pageBudget < 1 {
		return nil, fmt.Errorf("%w: 页面预算必须大于0 (%d)", models.ErrInvalidArgument, w.pageBudget)
	}
	if w.strategy == nil {
		return nil, fmt.Errorf("%w: 未指定页面获取策略", models.ErrInvalidArgument)
	}

	startTime := time.Now()

	fetcher, err := w.strategy.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("初始化%s获取器失败: %w", w.strategy.Name(), err)
	}
	defer func() {
		if cerr := fetcher.Close(); cerr != nil {
			w.logger.Warn().Err(cerr).Str("mode", string(w.strategy.Name())).Msg("关闭页面获取器失败")
		}
	}()

	s := newSession(maxDepth, w.pageBudget)
	f := newFrontier()
	stop := context.AfterFunc(ctx, f.close)
	defer stop()

	w.logger.Info().
		Str("event", "crawl_start").
		Str("url", seedURL.String()).
		Int("max_depth", maxDepth).
		Int("page_budget", w.pageBudget).
		Int("workers", w.workers).
		Str("mode", string(w.strategy.Name())).
		Msg("开始爬取")

	f.push(models.FrontierItem{Address: seedURL.String(), Depth: 0})

	if w.workers == 1 {
		w.work(ctx, fetcher, s, f)
	} else {
		var wg sync.WaitGroup
		for i := 0; i < w.workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.work(ctx, fetcher, s, f)
			}()
		}
		wg.Wait()
	}

	// 预算耗尽或取消后栈中剩余的条目
	s.addBudgetPruned(f.pending())

	pages, failures, stats := s.snapshot()
	stats.Duration = time.Since(startTime).Seconds()

	result := &Result{
		Seed:      seedURL.String(),
		Pages:     pages,
		Failures:  failures,
		Stats:     stats,
		Cancelled: ctx.Err() != nil,
	}

	if result.Cancelled {
		w.logger.Warn().
			Str("event", "crawl_cancelled").
			Str("url", result.Seed).
			Int("visited", stats.Visited).
			Err(context.Cause(ctx)).
			Msg("爬取已取消,返回部分结果")
	}

	w.logger.Info().
		Str("event", "crawl_done").
		Str("url", result.Seed).
		Int("visited", stats.Visited).
		Int("failed", stats.Failed).
		Float64("duration", stats.Duration).
		Msg("爬取完成")

	return result, nil
}

// work worker主循环
func (w *Walker) work(ctx context.Context, fetcher LinkFetcher, s *session, f *frontier) {
	for {
		item, ok := f.pop(ctx)
		if !ok {
			return
		}
		w.visit(ctx, fetcher, s, f, item)
		f.done()
	}
}

// visit 处理一个弹出的条目
func (w *Walker) visit(ctx context.Context, fetcher LinkFetcher, s *session, f *frontier, item models.FrontierItem) {
	outcome, last := s.tryVisit(item)
	switch outcome {
	case visitDuplicate, visitTooDeep:
		return
	case visitOverBudget:
		f.close()
		return
	}

	if w.onVisit != nil {
		w.onVisit(item)
	}

	w.logger.Debug().
		Str("event", "page_visited").
		Str("url", item.Address).
		Int("depth", item.Depth).
		Str("parent", item.Parent).
		Msg("访问页面")

	if last {
		w.logger.Info().
			Str("event", "budget_exhausted").
			Str("url", item.Address).
			Int("page_budget", s.pageBudget).
			Msg("页面预算已用完,停止遍历")
		f.close()
		return
	}

	// 子链接深度会超限,无需获取
	if item.Depth >= s.maxDepth {
		return
	}

	links, err := fetcher.FetchLinks(ctx, item.Address)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		failure := s.recordFailure(item, err)
		w.logger.Warn().
			Str("event", "fetch_failed").
			Str("url", item.Address).
			Int("depth", item.Depth).
			Str("reason", string(failure.Reason)).
			Err(err).
			Msg("页面获取失败,跳过")
		return
	}

	base, err := url.Parse(item.Address)
	if err != nil {
		return
	}

	children := make([]models.FrontierItem, 0, len(links))
	rejected, duplicates := 0, 0
	for _, raw := range links {
		address, ok := NormalizeLink(raw, base)
		if !ok {
			rejected++
			continue
		}
		if s.isVisited(address) {
			duplicates++
			continue
		}
		children = append(children, models.FrontierItem{
			Address: address,
			Depth:   item.Depth + 1,
			Parent:  item.Address,
		})
	}
	s.recordLinks(len(links), rejected, duplicates)
	f.push(children...)

	w.logger.Debug().
		Str("event", "links_accepted").
		Str("url", item.Address).
		Int("depth", item.Depth).
		Int("found", len(links)).
		Int("accepted", len(children)).
		Int("rejected", rejected).
		Msg("提取链接")
}
