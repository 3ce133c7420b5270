package core

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/RecoveryAshes/linkscout/internal/crawlers"
	"github.com/RecoveryAshes/linkscout/internal/models"
	"github.com/RecoveryAshes/linkscout/internal/utils"
	"github.com/rs/zerolog"
)

// 资源采样间隔
const monitorInterval = 2 * time.Second

// Crawler 主爬取器协调器
// 按配置选择获取策略,收紧并发数,驱动 Walker 并写出报告
type Crawler struct {
	config  Config
	headers models.HeaderProvider
	logger  zerolog.Logger

	progress io.Writer
	strategy func(crawlers.FetchOptions) crawlers.Strategy
}

// CrawlerOption Crawler 配置项
type CrawlerOption func(*Crawler)

// WithProgressOutput 在 w 上显示进度条,nil 表示不显示
func WithProgressOutput(w io.Writer) CrawlerOption {
	return func(c *Crawler) { c.progress = w }
}

// WithStrategyFactory 替换按模式创建获取策略的方式
func WithStrategyFactory(fn func(crawlers.FetchOptions) crawlers.Strategy) CrawlerOption {
	return func(c *Crawler) { c.strategy = fn }
}

// WithCrawlerLogger 设置日志器,默认使用全局日志的 crawler 组件
func WithCrawlerLogger(logger zerolog.Logger) CrawlerOption {
	return func(c *Crawler) { c.logger = logger }
}

// NewCrawler 创建主爬取器, headers 可为nil
func NewCrawler(cfg Config, headers models.HeaderProvider, opts ...CrawlerOption) *Crawler {
	c := &Crawler{
		config:  cfg,
		headers: headers,
		logger:  utils.Component("crawler"),
	}
	c.strategy = c.defaultStrategy
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Crawler) defaultStrategy(opts crawlers.FetchOptions) crawlers.Strategy {
	if c.config.Crawl.Mode == models.ModeDynamic {
		return crawlers.NewDynamicStrategy(opts)
	}
	return crawlers.NewStaticStrategy(opts)
}

// Crawl 爬取 seed 所在站点 maxDepth 层以内的页面
// 参数无效时返回包装 models.ErrInvalidSeed 或 models.ErrInvalidArgument 的错误
// ctx 取消时返回部分结果
func (c *Crawler) Crawl(ctx context.Context, seed string, maxDepth int) (*crawlers.Result, error) {
	cfg := c.config.GetCrawlConfig()
	cfg.Depth = maxDepth

	seedURL, err := crawlers.NormalizeSeed(seed)
	if err != nil {
		return nil, err
	}
	seed = seedURL.String()

	task, err := models.NewCrawlTask(seed, cfg)
	if err != nil {
		return nil, err
	}

	workers := cfg.Workers
	opts := c.config.FetchOptions()
	opts.Headers = c.headers
	opts.Logger = c.logger.With().Str("mode", string(cfg.Mode)).Logger()

	if c.config.Resource.Adaptive {
		monitor := crawlers.NewResourceMonitor(c.config.ResourceMonitorConfig(), c.logger)
		if limit := monitor.CalculateMaxWorkers(); workers > limit {
			status := monitor.GetMemoryStatus()
			c.logger.Warn().
				Int("requested", workers).
				Int("limit", limit).
				Str("memory_pressure", status.MemoryPressure).
				Int64("available_mb", status.AvailableMemory/(1024*1024)).
				Msg("系统资源不足,降低并发数")
			workers = limit
		}
		if cfg.Mode == models.ModeDynamic {
			monitor.StartMonitoring(monitorInterval)
			defer monitor.StopMonitoring()
			opts.Monitor = monitor
		}
	}
	opts.MaxTabs = workers

	walkerOpts := []crawlers.WalkerOption{
		crawlers.WithPageBudget(cfg.PageBudget),
		crawlers.WithWorkers(workers),
		crawlers.WithLogger(utils.Component("walker")),
	}
	if c.progress != nil {
		bar := utils.NewProgressBar(cfg.PageBudget, fmt.Sprintf("爬取 %s", task.Host), c.progress)
		defer func() { _ = bar.Finish() }()
		walkerOpts = append(walkerOpts, crawlers.WithVisitHook(func(models.FrontierItem) {
			_ = bar.Add(1)
		}))
	}

	walker := crawlers.NewWalker(c.strategy(opts), walkerOpts...)

	task.Start()
	result, err := walker.Crawl(ctx, seed, maxDepth)
	if err != nil {
		task.Finish(models.TaskStatusFailed, models.CrawlStats{}, err)
		c.logger.Error().Err(err).Str("task_id", task.ID).Str("url", seed).Msg("爬取失败")
		return nil, err
	}

	status := models.TaskStatusCompleted
	if result.Cancelled {
		status = models.TaskStatusCancelled
	}
	task.Finish(status, result.Stats, nil)

	if c.config.Output.Report {
		c.writeReport(task, result)
	}

	return result, nil
}

// writeReport 报告写入失败只记录警告
func (c *Crawler) writeReport(task *models.CrawlTask, result *crawlers.Result) {
	report := &models.CrawlReport{
		TaskID:   task.ID,
		SeedURL:  result.Seed,
		Host:     task.Host,
		Mode:     task.Config.Mode,
		Status:   task.Status,
		Duration: result.Stats.Duration,
		Pages:    result.Pages,
		Failures: result.Failures,
		Stats:    result.Stats,
		Config:   task.Config,
	}
	if task.StartedAt != nil {
		report.StartTime = *task.StartedAt
	}
	if task.CompletedAt != nil {
		report.EndTime = *task.CompletedAt
	}

	path, err := utils.NewReporter(c.config.Output.BaseDir).GenerateReport(report)
	if err != nil {
		c.logger.Warn().Err(err).Str("task_id", task.ID).Msg("生成报告失败")
		return
	}
	c.logger.Debug().Str("task_id", task.ID).Str("path", path).Msg("报告已生成")
}
