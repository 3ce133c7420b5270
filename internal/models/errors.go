package models

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// 调用级错误: 只有这些会传播给调用方
var (
	// ErrInvalidSeed 种子地址无效(与"零页面"结果区分)
	ErrInvalidSeed = errors.New("无效的种子地址")

	// ErrInvalidArgument 深度或页面预算等参数非法
	ErrInvalidArgument = errors.New("无效的爬取参数")
)

// FailureReason 页面获取失败原因
type FailureReason string

const (
	ReasonNetwork FailureReason = "network" // 网络错误或非2xx响应
	ReasonTimeout FailureReason = "timeout" // 超时
	ReasonParse   FailureReason = "parse"   // 内容解析失败
)

// FetchError 单个页面获取失败
// 由Page Fetcher返回,Walker吸收后记录,不会传播给调用方
type FetchError struct {
	// URL 获取失败的地址
	URL string

	// Reason 失败分类
	Reason FailureReason

	// StatusCode HTTP状态码(非HTTP错误时为0)
	StatusCode int

	// Err 底层错误
	Err error
}

// NewFetchError 包装底层错误并自动分类
func NewFetchError(url string, err error) *FetchError {
	return &FetchError{
		URL:    url,
		Reason: ClassifyFetchError(err),
		Err:    err,
	}
}

// Error 实现error接口
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("获取页面失败 [%s] (%s, HTTP %d): %v", e.URL, e.Reason, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("获取页面失败 [%s] (%s): %v", e.URL, e.Reason, e.Err)
}

// Unwrap 支持errors.Unwrap
func (e *FetchError) Unwrap() error {
	return e.Err
}

// ClassifyFetchError 将任意错误映射为失败原因
//   - 已分类的FetchError保持原分类
//   - context超时和net.Error超时归为timeout
//   - 其余归为network
func ClassifyFetchError(err error) FailureReason {
	if err == nil {
		return ""
	}

	var fe *FetchError
	if errors.As(err, &fe) && fe.Reason != "" {
		return fe.Reason
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}

	return ReasonNetwork
}

// PageFailure 爬取结果中记录的失败页面
type PageFailure struct {
	URL    string        `json:"url"`
	Depth  int           `json:"depth"`
	Reason FailureReason `json:"reason"`
	Error  string        `json:"error"`
}

// ConfigError 配置文件错误
// 表示配置文件解析失败
type ConfigError struct {
	// FilePath 配置文件路径
	FilePath string

	// Cause 底层错误 (如viper.ConfigParseError)
	Cause error
}

// Error 实现error接口
func (e *ConfigError) Error() string {
	return fmt.Sprintf("配置文件错误 [%s]: %v", e.FilePath, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Cause
}
