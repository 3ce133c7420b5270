package crawlers

import (
	"errors"
	"sync"

	"github.com/RecoveryAshes/linkscout/internal/models"
)

// visitOutcome tryVisit 的结果
type visitOutcome int

const (
	visitAccepted   visitOutcome = iota // 已记录为访问
	visitDuplicate                      // 已访问过
	visitTooDeep                        // 超过最大深度
	visitOverBudget                     // 页面预算已用完
)

// session 单次爬取的状态,每次 Crawl 调用独立创建
type session struct {
	mu sync.Mutex

	maxDepth   int
	pageBudget int

	visited  map[string]struct{}
	pages    []string
	failures []models.PageFailure
	stats    models.CrawlStats
}

func newSession(maxDepth, pageBudget int) *session {
	return &session{
		maxDepth:   maxDepth,
		pageBudget: pageBudget,
		visited:    make(map[string]struct{}),
		pages:      make([]string, 0, min(pageBudget, 64)),
	}
}

// tryVisit 检查并记录一次访问
// 去重、深度检查、加入结果、预算计数在同一把锁内完成
// last 为 true 表示本次访问用掉了最后一个预算
func (s *session) tryVisit(item models.FrontierItem) (outcome visitOutcome, last bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.visited[item.Address]; ok {
		s.stats.Duplicates++
		return visitDuplicate, false
	}
	if item.Depth > s.maxDepth {
		s.stats.DepthPruned++
		return visitTooDeep, false
	}
	if len(s.pages) >= s.pageBudget {
		s.stats.BudgetPruned++
		return visitOverBudget, false
	}

	s.visited[item.Address] = struct{}{}
	s.pages = append(s.pages, item.Address)
	s.stats.Visited++
	return visitAccepted, len(s.pages) == s.pageBudget
}

// isVisited 入栈前的预过滤,最终以 tryVisit 为准
func (s *session) isVisited(address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.visited[address]
	return ok
}

func (s *session) recordFailure(item models.FrontierItem, err error) models.PageFailure {
	failure := models.PageFailure{
		URL:    item.Address,
		Depth:  item.Depth,
		Reason: models.ClassifyFetchError(err),
		Error:  err.Error(),
	}

	var fe *models.FetchError
	if errors.As(err, &fe) && fe.Err != nil {
		failure.Error = fe.Err.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure)
	s.stats.Failed++
	return failure
}

func (s *session) recordLinks(seen, rejected, duplicates int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.LinksSeen += seen
	s.stats.LinksRejected += rejected
	s.stats.Duplicates += duplicates
}

func (s *session) addBudgetPruned(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.BudgetPruned += n
}

// snapshot 返回结果的副本
func (s *session) snapshot() ([]string, []models.PageFailure, models.CrawlStats) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pages := make([]string, len(s.pages))
	copy(pages, s.pages)
	failures := make([]models.PageFailure, len(s.failures))
	copy(failures, s.failures)
	return pages, failures, s.stats
}
