package core

import (
	"context"
	"fmt"
	"time"

	"github.com/RecoveryAshes/linkscout/internal/crawlers"
	"github.com/RecoveryAshes/linkscout/internal/utils"
)

// BatchCrawler 依次爬取多个种子
type BatchCrawler struct {
	crawler       *Crawler
	maxDepth      int
	batchDelay    time.Duration
	continueOnErr bool
}

// BatchResult 单个种子的结果
type BatchResult struct {
	URL         string           `json:"url"`
	Success     bool             `json:"success"`
	Error       string           `json:"error,omitempty"`
	Result      *crawlers.Result `json:"result,omitempty"`
	ProcessedAt time.Time        `json:"processed_at"`
	Duration    float64          `json:"duration"`
}

// BatchSummary 批量爬取摘要
type BatchSummary struct {
	TotalURLs     int           `json:"total_urls"`
	SuccessCount  int           `json:"success_count"`
	FailCount     int           `json:"fail_count"`
	TotalPages    int           `json:"total_pages"`
	TotalDuration float64       `json:"total_duration"`
	Cancelled     bool          `json:"cancelled"`
	Results       []BatchResult `json:"results"`
}

// NewBatchCrawler 创建批量爬取器
func NewBatchCrawler(crawler *Crawler, maxDepth int, batchDelay time.Duration, continueOnErr bool) *BatchCrawler {
	return &BatchCrawler{
		crawler:       crawler,
		maxDepth:      maxDepth,
		batchDelay:    batchDelay,
		continueOnErr: continueOnErr,
	}
}

// CrawlBatch 依次爬取URL列表
// 某个种子失败时按 continueOnErr 决定是否继续,ctx 取消时停止处理后续种子
func (bc *BatchCrawler) CrawlBatch(ctx context.Context, urls []string) *BatchSummary {
	utils.Infof("开始批量爬取: %d个URL", len(urls))

	summary := &BatchSummary{
		TotalURLs: len(urls),
		Results:   make([]BatchResult, 0, len(urls)),
	}
	startTime := time.Now()

	for i, targetURL := range urls {
		if ctx.Err() != nil {
			summary.Cancelled = true
			break
		}

		utils.Infof("[%d/%d] %s", i+1, len(urls), targetURL)

		result := bc.crawlSingleURL(ctx, targetURL)
		summary.Results = append(summary.Results, result)

		if result.Success {
			summary.SuccessCount++
			summary.TotalPages += len(result.Result.Pages)
			if result.Result.Cancelled {
				summary.Cancelled = true
				break
			}
		} else {
			summary.FailCount++
			utils.Errorf("爬取失败 [%s]: %s", targetURL, result.Error)
			if !bc.continueOnErr {
				utils.Warn("批量爬取中止 (--continue-on-error=false)")
				break
			}
		}

		if i < len(urls)-1 && bc.batchDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(bc.batchDelay):
			}
		}
	}

	summary.TotalDuration = time.Since(startTime).Seconds()
	bc.printSummary(summary)
	return summary
}

func (bc *BatchCrawler) crawlSingleURL(ctx context.Context, targetURL string) BatchResult {
	result := BatchResult{
		URL:         targetURL,
		ProcessedAt: time.Now(),
	}

	res, err := bc.crawler.Crawl(ctx, targetURL, bc.maxDepth)
	result.Duration = time.Since(result.ProcessedAt).Seconds()
	if err != nil {
		result.Error = fmt.Errorf("爬取失败: %w", err).Error()
		return result
	}

	result.Success = true
	result.Result = res
	return result
}

func (bc *BatchCrawler) printSummary(summary *BatchSummary) {
	utils.Infof("批量爬取摘要: 共%d个, 成功%d, 失败%d, 页面%d, 耗时%.2f秒",
		summary.TotalURLs, summary.SuccessCount, summary.FailCount,
		summary.TotalPages, summary.TotalDuration)

	for _, result := range summary.Results {
		if !result.Success {
			utils.Warnf("  - %s: %s", result.URL, result.Error)
		}
	}
}
