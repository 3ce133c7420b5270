package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/RecoveryAshes/linkscout/internal/core"
	"github.com/RecoveryAshes/linkscout/internal/models"
)

// CrawlSiteToolName 工具名
const CrawlSiteToolName = "crawl_site"

// CrawlSiteArgs crawl_site 的参数
type CrawlSiteArgs struct {
	URL        string `json:"url"`
	MaxDepth   *int   `json:"maxDepth"`
	PageBudget *int   `json:"pageBudget,omitempty"`
}

// CrawlSiteResult crawl_site 的结果,按访问顺序排列,种子在首位
type CrawlSiteResult struct {
	Result []string `json:"result"`
}

// CrawlSiteTool 爬取同源页面并返回访问过的地址
type CrawlSiteTool struct {
	config  core.Config
	headers models.HeaderProvider
}

// NewCrawlSiteTool 创建 crawl_site 工具, headers 可为nil
func NewCrawlSiteTool(cfg core.Config, headers models.HeaderProvider) *CrawlSiteTool {
	return &CrawlSiteTool{config: cfg, headers: headers}
}

func (t *CrawlSiteTool) Name() string { return CrawlSiteToolName }

func (t *CrawlSiteTool) Description() string {
	return "从种子地址出发,按深度优先遍历同源页面,返回访问过的页面地址列表(种子在首位)"
}

func (t *CrawlSiteTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "种子地址,必须是http或https绝对地址",
			},
			"maxDepth": map[string]any{
				"type":        "integer",
				"minimum":     0,
				"description": "最大深度,0 表示只访问种子",
			},
			"pageBudget": map[string]any{
				"type":        "integer",
				"minimum":     1,
				"maximum":     models.MaxPageBudgetLimit,
				"description": fmt.Sprintf("最多访问的页面数,默认 %d", t.config.Crawl.PageBudget),
			},
		},
		"required": []string{"url", "maxDepth"},
	}
}

// Execute 参数无效时返回包装 models.ErrInvalidArgument 或 models.ErrInvalidSeed 的错误
func (t *CrawlSiteTool) Execute(ctx context.Context, raw json.RawMessage) (any, error) {
	var args CrawlSiteArgs
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: 缺少参数", models.ErrInvalidArgument)
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("%w: 参数格式错误: %v", models.ErrInvalidArgument, err)
	}
	if args.URL == "" {
		return nil, fmt.Errorf("%w: 缺少url", models.ErrInvalidArgument)
	}
	if args.MaxDepth == nil {
		return nil, fmt.Errorf("%w: 缺少maxDepth", models.ErrInvalidArgument)
	}

	cfg := t.config
	if args.PageBudget != nil {
		cfg.Crawl.PageBudget = *args.PageBudget
	}

	result, err := core.NewCrawler(cfg, t.headers).Crawl(ctx, args.URL, *args.MaxDepth)
	if err != nil {
		return nil, err
	}

	pages := result.Pages
	if pages == nil {
		pages = []string{}
	}
	return CrawlSiteResult{Result: pages}, nil
}
