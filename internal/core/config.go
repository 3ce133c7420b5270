package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RecoveryAshes/linkscout/internal/crawlers"
	"github.com/RecoveryAshes/linkscout/internal/models"
	"github.com/RecoveryAshes/linkscout/internal/utils"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀, 例如 LINKSCOUT_CRAWL_DEPTH=3
const EnvPrefix = "LINKSCOUT"

// Config 应用程序配置
type Config struct {
	Crawl    CrawlSettings    `mapstructure:"crawl"`
	Logging  LoggingConfig    `mapstructure:"logging"`
	Output   OutputConfig     `mapstructure:"output"`
	Resource ResourceSettings `mapstructure:"resource"`
	Headers  HeadersConfig    `mapstructure:"headers"`
}

// CrawlSettings 爬取配置
type CrawlSettings struct {
	models.CrawlConfig `mapstructure:",squash"`

	// UserAgent 为空时使用头部配置中的 User-Agent
	UserAgent string `mapstructure:"user_agent"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	BaseDir string `mapstructure:"base_dir"`
	// Report 是否写入JSON报告
	Report bool `mapstructure:"report"`
}

// ResourceSettings 资源限制
type ResourceSettings struct {
	// Adaptive 按系统内存和CPU收紧并发数
	Adaptive         bool `mapstructure:"adaptive"`
	ReserveMemoryMB  int  `mapstructure:"reserve_memory_mb"`
	ThresholdMB      int  `mapstructure:"threshold_mb"`
	CPULoadThreshold int  `mapstructure:"cpu_load_threshold"`
	WorkerMemoryMB   int  `mapstructure:"worker_memory_mb"`
}

// HeadersConfig HTTP头部配置文件
type HeadersConfig struct {
	// File 为空时不读取头部配置文件
	File string `mapstructure:"file"`
}

// LoadConfig 加载配置文件
// configPath 为空时依次搜索 ./configs、. 和 ~/.linkscout 下的 config.yaml,找不到时使用默认值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".linkscout"))
		}
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &models.ConfigError{FilePath: configPath, Cause: err}
		}
		utils.Debugf("未找到配置文件,使用默认配置")
	} else {
		utils.Debugf("使用配置文件: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, &models.ConfigError{
			FilePath: v.ConfigFileUsed(),
			Cause:    fmt.Errorf("解析配置失败: %w", err),
		}
	}

	return &config, nil
}

// DefaultConfig 不读取任何文件和环境变量的默认配置
func DefaultConfig() Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	// 默认值类型都是确定的,不会失败
	_ = v.Unmarshal(&config)
	return config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawl.depth", 2)
	v.SetDefault("crawl.page_budget", models.DefaultPageBudget)
	v.SetDefault("crawl.mode", string(models.ModeStatic))
	v.SetDefault("crawl.workers", 1)
	v.SetDefault("crawl.timeout", 15)
	v.SetDefault("crawl.render_wait", 1)
	v.SetDefault("crawl.headless", true)
	v.SetDefault("crawl.insecure_tls", false)
	v.SetDefault("crawl.max_body_size", crawlers.DefaultMaxBodySize)
	v.SetDefault("crawl.user_agent", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	v.SetDefault("output.base_dir", "output")
	v.SetDefault("output.report", true)

	v.SetDefault("resource.adaptive", true)
	v.SetDefault("resource.reserve_memory_mb", 1024)
	v.SetDefault("resource.threshold_mb", 500)
	v.SetDefault("resource.cpu_load_threshold", 80)
	v.SetDefault("resource.worker_memory_mb", 100)

	v.SetDefault("headers.file", "")
}

// CLIOverrides 命令行显式指定的参数,nil 表示未指定
type CLIOverrides struct {
	Depth       *int
	PageBudget  *int
	Mode        *string
	Workers     *int
	Timeout     *int
	WaitTime    *int
	Headless    *bool
	InsecureTLS *bool
	OutputDir   *string
	LogLevel    *string
	HeaderFile  *string
}

// MergeCLIFlags 合并命令行参数,命令行优先于配置文件和环境变量
func (c *Config) MergeCLIFlags(o CLIOverrides) {
	if o.Depth != nil {
		c.Crawl.Depth = *o.Depth
	}
	if o.PageBudget != nil {
		c.Crawl.PageBudget = *o.PageBudget
	}
	if o.Mode != nil {
		c.Crawl.Mode = models.CrawlMode(*o.Mode)
	}
	if o.Workers != nil {
		c.Crawl.Workers = *o.Workers
	}
	if o.Timeout != nil {
		c.Crawl.Timeout = *o.Timeout
	}
	if o.WaitTime != nil {
		c.Crawl.WaitTime = *o.WaitTime
	}
	if o.Headless != nil {
		c.Crawl.Headless = *o.Headless
	}
	if o.InsecureTLS != nil {
		c.Crawl.InsecureTLS = *o.InsecureTLS
	}
	if o.OutputDir != nil {
		c.Output.BaseDir = *o.OutputDir
	}
	if o.LogLevel != nil {
		c.Logging.Level = *o.LogLevel
	}
	if o.HeaderFile != nil {
		c.Headers.File = *o.HeaderFile
	}
}

// GetCrawlConfig 提取爬取配置
func (c *Config) GetCrawlConfig() models.CrawlConfig {
	return c.Crawl.CrawlConfig
}

// LogConfig 转换为日志初始化参数
func (c *Config) LogConfig() utils.LogConfig {
	lc := utils.DefaultLogConfig()
	lc.Level = c.Logging.Level
	if c.Logging.LogDir != "" {
		lc.LogDir = c.Logging.LogDir
	}
	if c.Logging.Rotation.MaxSize > 0 {
		lc.MaxSize = c.Logging.Rotation.MaxSize
	}
	if c.Logging.Rotation.MaxBackups > 0 {
		lc.MaxBackups = c.Logging.Rotation.MaxBackups
	}
	if c.Logging.Rotation.MaxAge > 0 {
		lc.MaxAge = c.Logging.Rotation.MaxAge
	}
	lc.Compress = c.Logging.Rotation.Compress
	return lc
}

// FetchOptions 转换为页面获取选项,头部、监控器和日志由调用方补充
func (c *Config) FetchOptions() crawlers.FetchOptions {
	return crawlers.FetchOptions{
		Timeout:     time.Duration(c.Crawl.Timeout) * time.Second,
		RenderWait:  time.Duration(c.Crawl.WaitTime) * time.Second,
		Headless:    c.Crawl.Headless,
		InsecureTLS: c.Crawl.InsecureTLS,
		MaxBodySize: c.Crawl.MaxBodySize,
		UserAgent:   c.Crawl.UserAgent,
		MaxTabs:     c.Crawl.Workers,
	}
}

// ResourceMonitorConfig 转换为资源监控配置
func (c *Config) ResourceMonitorConfig() crawlers.ResourceMonitorConfig {
	const mb = 1024 * 1024
	rc := crawlers.DefaultResourceMonitorConfig()
	if c.Resource.ReserveMemoryMB > 0 {
		rc.SafetyReserveMemory = int64(c.Resource.ReserveMemoryMB) * mb
	}
	if c.Resource.ThresholdMB > 0 {
		rc.SafetyThreshold = int64(c.Resource.ThresholdMB) * mb
	}
	if c.Resource.CPULoadThreshold > 0 {
		rc.CPULoadThreshold = c.Resource.CPULoadThreshold
	}
	if c.Resource.WorkerMemoryMB > 0 {
		rc.WorkerMemoryUsage = int64(c.Resource.WorkerMemoryMB) * mb
	}
	rc.MaxWorkersLimit = models.MaxWorkersLimit
	return rc
}
