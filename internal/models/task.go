package models

import (
	"fmt"
	"net/url"
	"time"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"   // 待执行
	TaskStatusRunning   TaskStatus = "running"   // 执行中
	TaskStatusCompleted TaskStatus = "completed" // 已完成
	TaskStatusFailed    TaskStatus = "failed"    // 失败
	TaskStatusCancelled TaskStatus = "cancelled" // 已取消(返回部分结果)
)

// CrawlMode 页面获取策略
type CrawlMode string

const (
	ModeStatic  CrawlMode = "static"  // HTTP请求 + HTML解析
	ModeDynamic CrawlMode = "dynamic" // 浏览器渲染,执行页面脚本
)

// Valid 检查模式是否受支持
func (m CrawlMode) Valid() bool {
	return m == ModeStatic || m == ModeDynamic
}

// 配置取值范围
const (
	MaxPageBudgetLimit = 100000
	MaxWorkersLimit    = 64
	DefaultPageBudget  = 100
)

// CrawlStats 爬取统计
type CrawlStats struct {
	Visited       int     `json:"visited"`        // 已访问页面数
	Failed        int     `json:"failed"`         // 获取失败页面数
	Duplicates    int     `json:"duplicates"`     // 因已访问被丢弃的条目
	DepthPruned   int     `json:"depth_pruned"`   // 因深度超限被丢弃的条目
	BudgetPruned  int     `json:"budget_pruned"`  // 因页面预算耗尽被丢弃的条目
	LinksSeen     int     `json:"links_seen"`     // 提取到的原始链接总数
	LinksRejected int     `json:"links_rejected"` // 规范化阶段被拒绝的链接
	Duration      float64 `json:"duration"`       // 总耗时(秒)
}

// CrawlConfig 爬取配置
type CrawlConfig struct {
	Depth       int       `json:"depth" mapstructure:"depth"`                 // 最大深度 (默认:2)
	PageBudget  int       `json:"page_budget" mapstructure:"page_budget"`     // 页面预算 (默认:100)
	Mode        CrawlMode `json:"mode" mapstructure:"mode"`                   // 获取策略 (默认:static)
	Workers     int       `json:"workers" mapstructure:"workers"`             // 并发worker数 (默认:1,单线程遍历)
	Timeout     int       `json:"timeout" mapstructure:"timeout"`             // 单页超时(秒) (默认:15)
	WaitTime    int       `json:"render_wait" mapstructure:"render_wait"`     // 动态模式渲染等待(秒) (默认:1)
	Headless    bool      `json:"headless" mapstructure:"headless"`           // 无头模式 (默认:true)
	InsecureTLS bool      `json:"insecure_tls" mapstructure:"insecure_tls"`   // 跳过证书验证 (默认:false)
	MaxBodySize int       `json:"max_body_size" mapstructure:"max_body_size"` // 响应体上限(字节)
}

// Validate 验证配置
func (c *CrawlConfig) Validate() error {
	// 深度不设上限,遍历规模由页面预算约束
	if c.Depth < 0 {
		return fmt.Errorf("深度不能为负数: %d", c.Depth)
	}
	if c.PageBudget < 1 || c.PageBudget > MaxPageBudgetLimit {
		return fmt.Errorf("页面预算必须在1-%d之间", MaxPageBudgetLimit)
	}
	if !c.Mode.Valid() {
		return fmt.Errorf("无效的爬取模式: %s (有效值: static, dynamic)", c.Mode)
	}
	if c.Workers < 1 || c.Workers > MaxWorkersLimit {
		return fmt.Errorf("并发数必须在1-%d之间", MaxWorkersLimit)
	}
	if c.Timeout < 1 || c.Timeout > 300 {
		return fmt.Errorf("超时时间必须在1-300秒之间")
	}
	if c.WaitTime < 0 || c.WaitTime > 60 {
		return fmt.Errorf("等待时间必须在0-60秒之间")
	}
	if c.MaxBodySize < 0 {
		return fmt.Errorf("响应体上限不能为负数")
	}
	return nil
}

// CrawlTask 爬取任务
type CrawlTask struct {
	ID          string     `json:"id"`                     // 任务唯一ID (UUID)
	SeedURL     string     `json:"seed_url"`               // 种子URL
	Host        string     `json:"host"`                   // 种子主机
	CreatedAt   time.Time  `json:"created_at"`             // 创建时间
	StartedAt   *time.Time `json:"started_at,omitempty"`   // 开始时间
	CompletedAt *time.Time `json:"completed_at,omitempty"` // 完成时间

	Config CrawlConfig `json:"config"`
	Status TaskStatus  `json:"status"`
	Stats  CrawlStats  `json:"stats"`

	ErrorMessage string `json:"error_message,omitempty"`
}

// NewCrawlTask 创建新任务
func NewCrawlTask(seedURL string, config CrawlConfig) (*CrawlTask, error) {
	if err := ValidateURL(seedURL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	parsed, _ := url.Parse(seedURL)

	return &CrawlTask{
		ID:        generateID(),
		SeedURL:   seedURL,
		Host:      parsed.Host,
		CreatedAt: time.Now(),
		Config:    config,
		Status:    TaskStatusPending,
	}, nil
}

// Start 标记任务开始
func (t *CrawlTask) Start() {
	now := time.Now()
	t.StartedAt = &now
	t.Status = TaskStatusRunning
}

// Finish 标记任务结束
func (t *CrawlTask) Finish(status TaskStatus, stats CrawlStats, err error) {
	now := time.Now()
	t.CompletedAt = &now
	t.Status = status
	t.Stats = stats
	if err != nil {
		t.ErrorMessage = err.Error()
	}
}
