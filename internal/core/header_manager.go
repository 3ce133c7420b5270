package core

import (
	"net/http"
	"sync"

	"github.com/RecoveryAshes/linkscout/internal/config"
	"github.com/RecoveryAshes/linkscout/internal/models"
	"github.com/RecoveryAshes/linkscout/internal/utils"
)

const (
	// DefaultUserAgent 默认User-Agent
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/120.0.0.0 Safari/537.36"

	// DefaultAccept 默认Accept,只关心HTML页面
	DefaultAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

// HeaderManager 管理HTTP请求头部,优先级 default < config < cli
// 实现 models.HeaderProvider,可被多个抓取协程并发调用
type HeaderManager struct {
	defaults http.Header
	config   http.Header
	cli      http.Header

	validator    *utils.HeaderValidator
	redactor     *utils.HeaderRedactor
	configLoader *config.HeaderConfigLoader

	// useConfig 为false时不读取配置文件
	useConfig bool

	mu      sync.Mutex
	loaded  bool
	merged  http.Header
	lastErr error
}

// NewHeaderManager 创建头部管理器
// configFile 为空时不读取配置文件,只使用默认头部和命令行头部
func NewHeaderManager(configFile string, cliHeaders []string) (*HeaderManager, error) {
	hm := &HeaderManager{
		defaults:  getDefaultHeaders(),
		config:    make(http.Header),
		cli:       make(http.Header),
		validator: utils.NewHeaderValidator(),
		redactor:  utils.NewHeaderRedactor(),
		useConfig: configFile != "",
	}
	if hm.useConfig {
		hm.configLoader = config.NewHeaderConfigLoader(configFile)
	}

	if len(cliHeaders) > 0 {
		parsed, err := models.CliHeaders(cliHeaders).Parse()
		if err != nil {
			return nil, err
		}
		hm.cli = parsed
	}

	return hm, nil
}

func getDefaultHeaders() http.Header {
	return http.Header{
		"User-Agent":      []string{DefaultUserAgent},
		"Accept":          []string{DefaultAccept},
		"Accept-Encoding": []string{"gzip, deflate, br"},
	}
}

// LoadConfig 加载配置文件,已加载时跳过
func (hm *HeaderManager) LoadConfig() error {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	return hm.loadLocked()
}

func (hm *HeaderManager) loadLocked() error {
	if hm.loaded || !hm.useConfig {
		return nil
	}

	headerConfig, err := hm.configLoader.LoadConfig()
	if err != nil {
		utils.Errorf("加载HTTP头部配置失败: %v", err)
		return err
	}

	cfg := make(http.Header)
	for name, value := range headerConfig.Headers {
		cfg.Set(name, value)
	}
	hm.config = cfg
	hm.loaded = true

	if len(cfg) > 0 {
		utils.Debugf("加载%d个HTTP头部配置: %s", len(cfg), hm.redactor.RedactToString(cfg))
	}
	return nil
}

// Validate 依次验证默认、配置文件、命令行头部
func (hm *HeaderManager) Validate() error {
	for _, layer := range []struct {
		name    string
		headers http.Header
	}{
		{"默认", hm.defaults},
		{"配置文件", hm.config},
		{"命令行", hm.cli},
	} {
		if err := hm.validator.Validate(layer.headers); err != nil {
			utils.Errorf("%s头部验证失败: %v", layer.name, err)
			return err
		}
	}
	return nil
}

// GetMergedHeaders 按优先级合并头部
func (hm *HeaderManager) GetMergedHeaders() http.Header {
	result := make(http.Header)
	for _, layer := range []http.Header{hm.defaults, hm.config, hm.cli} {
		for name, values := range layer {
			result[name] = values
		}
	}
	return result
}

// GetSafeHeaders 脱敏后的合并头部,用于日志和报告
func (hm *HeaderManager) GetSafeHeaders() map[string]string {
	return hm.redactor.Redact(hm.GetMergedHeaders())
}

// GetHeaders 实现 models.HeaderProvider
// 第一次调用时加载并验证,之后返回缓存结果的副本
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if hm.merged != nil {
		return hm.merged.Clone(), nil
	}
	if hm.lastErr != nil {
		return nil, hm.lastErr
	}

	if err := hm.loadLocked(); err != nil {
		hm.lastErr = err
		return nil, err
	}
	if err := hm.Validate(); err != nil {
		hm.lastErr = err
		return nil, err
	}

	hm.merged = hm.GetMergedHeaders()
	return hm.merged.Clone(), nil
}
