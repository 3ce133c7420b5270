package models

import (
	"encoding/json"
	"time"
)

// CrawlReport 爬取报告
type CrawlReport struct {
	// 任务信息
	TaskID  string     `json:"task_id"`
	SeedURL string     `json:"seed_url"`
	Host    string     `json:"host"`
	Mode    CrawlMode  `json:"mode"`
	Status  TaskStatus `json:"status"`

	// 时间信息
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"` // 秒

	// 结果
	Pages    []string      `json:"pages"`    // 按访问顺序,种子在首位
	Failures []PageFailure `json:"failures"` // 获取失败的页面
	Stats    CrawlStats    `json:"stats"`

	// 配置快照
	Config CrawlConfig `json:"config"`
}

// ToJSON 序列化为JSON
func (r *CrawlReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
