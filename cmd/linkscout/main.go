package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/RecoveryAshes/linkscout/internal/core"
	"github.com/RecoveryAshes/linkscout/internal/crawlers"
	"github.com/RecoveryAshes/linkscout/internal/tools"
	"github.com/RecoveryAshes/linkscout/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string

	// HTTP头部参数
	headers        []string
	headerFile     string
	validateConfig bool

	// 爬取参数
	targetURL   string
	urlFile     string
	depth       int
	pageBudget  int
	mode        string
	workers     int
	timeout     int
	waitTime    int
	headless    bool
	insecureTLS bool
	outputDir   string
	jsonOutput  bool
	noProgress  bool

	// 批量处理参数
	batchDelay      int
	continueOnError bool

	// serve 参数
	serveTransport string
	serveAddr      string
)

// appConfig 在 PersistentPreRunE 中加载并合并命令行参数
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "linkscout",
	Short: "同源站点链接爬取工具",
	Long: `linkscout - 有界的同源站点爬取工具

从种子地址出发,按深度优先遍历同一源(scheme+host+port)下的页面,
输出访问过的页面地址列表,种子在首位:
  • 静态模式: HTTP请求 + HTML解析
  • 动态模式: 无头浏览器渲染,执行页面脚本后提取链接
  • 深度上限和页面预算
  • 批量URL处理
  • 自定义HTTP请求头
  • serve 子命令: 以MCP服务提供 crawl_site 工具 (stdio 或 SSE)

示例:
  linkscout -u https://example.com -d 2
  linkscout -u https://example.com -m dynamic -b 500 --json
  linkscout -f urls.txt -o results
  linkscout -u https://example.com -H "Authorization: Bearer token"

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE:              runCrawl,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "linkscout %s\n", Version)
		fmt.Fprintf(cmd.OutOrStdout(), "构建时间: %s\n", BuildTime)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "以MCP服务提供 crawl_site 工具",
	Long: `启动MCP服务,注册 crawl_site 工具:
  参数: {"url": "https://example.com", "maxDepth": 2, "pageBudget": 100}
  结果: 文本内容 {"result": ["https://example.com/", ...]}

传输方式:
  stdio  标准输入输出上的JSON-RPC (默认)
  sse    HTTP SSE,监听 --addr

日志只写到标准错误和日志文件。

示例:
  linkscout serve
  linkscout serve --transport sse --addr 127.0.0.1:8080`,
	RunE: runServe,
}

// setup 加载配置并初始化日志
func setup(cmd *cobra.Command, args []string) error {
	config, err := core.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	config.MergeCLIFlags(collectOverrides(cmd))
	appConfig = config

	logConfig := config.LogConfig()
	logConfig.Console = os.Stderr
	if verbose && !cmd.Flags().Changed("log-level") {
		logConfig.Level = "debug"
	}
	if err := utils.InitLogger(logConfig); err != nil {
		return fmt.Errorf("初始化日志系统失败: %w", err)
	}

	if verbose {
		utils.Debug("详细模式已启用")
	}
	return nil
}

// collectOverrides 只收集用户显式指定的参数
func collectOverrides(cmd *cobra.Command) core.CLIOverrides {
	flags := cmd.Flags()
	var o core.CLIOverrides
	if flags.Changed("depth") {
		o.Depth = &depth
	}
	if flags.Changed("budget") {
		o.PageBudget = &pageBudget
	}
	if flags.Changed("mode") {
		o.Mode = &mode
	}
	if flags.Changed("workers") {
		o.Workers = &workers
	}
	if flags.Changed("timeout") {
		o.Timeout = &timeout
	}
	if flags.Changed("wait") {
		o.WaitTime = &waitTime
	}
	if flags.Changed("headless") {
		o.Headless = &headless
	}
	if flags.Changed("insecure") {
		o.InsecureTLS = &insecureTLS
	}
	if flags.Changed("output") {
		o.OutputDir = &outputDir
	}
	if flags.Changed("log-level") {
		o.LogLevel = &logLevel
	}
	if flags.Changed("header-file") {
		o.HeaderFile = &headerFile
	}
	return o
}

func newHeaderManager() (*core.HeaderManager, error) {
	hm, err := core.NewHeaderManager(appConfig.Headers.File, headers)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP头部管理器失败: %w", err)
	}
	return hm, nil
}

func runCrawl(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	headerManager, err := newHeaderManager()
	if err != nil {
		return err
	}

	if validateConfig {
		return runValidateConfig(cmd.OutOrStdout(), headerManager)
	}

	if targetURL == "" && urlFile == "" {
		return cmd.Help()
	}

	if err := ValidateFlags(targetURL, urlFile, appConfig.GetCrawlConfig()); err != nil {
		return err
	}

	// 启动前验证头部,避免每个页面都报同样的错误
	if _, err := headerManager.GetHeaders(); err != nil {
		return fmt.Errorf("HTTP头部配置无效: %w", err)
	}

	var opts []core.CrawlerOption
	if !noProgress && !verbose {
		opts = append(opts, core.WithProgressOutput(os.Stderr))
	}
	crawler := core.NewCrawler(*appConfig, headerManager, opts...)
	out := cmd.OutOrStdout()

	if urlFile != "" {
		urls, err := utils.ReadURLsFromFile(urlFile)
		if err != nil {
			return fmt.Errorf("读取URL文件失败: %w", err)
		}

		batch := core.NewBatchCrawler(crawler, appConfig.Crawl.Depth, time.Duration(batchDelay)*time.Second, continueOnError)
		summary := batch.CrawlBatch(ctx, urls)
		if err := printBatch(out, summary); err != nil {
			return err
		}
		if summary.Cancelled {
			utils.Warn("收到中断信号,已输出部分结果")
		}
		return nil
	}

	result, err := crawler.Crawl(ctx, targetURL, appConfig.Crawl.Depth)
	if err != nil {
		return fmt.Errorf("爬取失败: %w", err)
	}
	if err := printResult(out, result); err != nil {
		return err
	}
	if result.Cancelled {
		utils.Warn("收到中断信号,已输出部分结果")
	}
	return nil
}

func runValidateConfig(w io.Writer, hm *core.HeaderManager) error {
	utils.Info("验证HTTP头部配置...")
	if err := hm.LoadConfig(); err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	if err := hm.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}
	crawlConfig := appConfig.GetCrawlConfig()
	if err := crawlConfig.Validate(); err != nil {
		return fmt.Errorf("爬取配置无效: %w", err)
	}

	safeHeaders := hm.GetSafeHeaders()
	names := make([]string, 0, len(safeHeaders))
	for name := range safeHeaders {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "配置验证通过")
	fmt.Fprintf(w, "当前有效的HTTP头部 (%d个):\n", len(names))
	for _, name := range names {
		fmt.Fprintf(w, "  %s: %s\n", name, safeHeaders[name])
	}
	return nil
}

// printResult 默认每行一个地址, --json 时输出完整结果
func printResult(w io.Writer, result *crawlers.Result) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	for _, page := range result.Pages {
		if _, err := fmt.Fprintln(w, page); err != nil {
			return err
		}
	}
	utils.Infof("访问 %d 个页面, 失败 %d 个, 耗时 %.2f秒",
		result.Stats.Visited, result.Stats.Failed, result.Stats.Duration)
	return nil
}

func printBatch(w io.Writer, summary *core.BatchSummary) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	for _, r := range summary.Results {
		if !r.Success {
			continue
		}
		for _, page := range r.Result.Pages {
			if _, err := fmt.Fprintln(w, page); err != nil {
				return err
			}
		}
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	headerManager, err := newHeaderManager()
	if err != nil {
		return err
	}
	if _, err := headerManager.GetHeaders(); err != nil {
		return fmt.Errorf("HTTP头部配置无效: %w", err)
	}

	registry := tools.NewRegistry(tools.NewCrawlSiteTool(*appConfig, headerManager))
	utils.Infof("serve 已启动 (%s), 可用工具: %d", serveTransport, len(registry.Definitions()))

	switch serveTransport {
	case tools.TransportStdio:
		err = tools.ServeStdio(ctx, registry, Version, cmd.InOrStdin(), cmd.OutOrStdout())
	case tools.TransportSSE:
		err = tools.ServeSSE(ctx, registry, Version, serveAddr)
	default:
		return fmt.Errorf("无效的传输方式: %s (有效值: stdio, sse)", serveTransport)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")

	// HTTP头部参数
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.PersistentFlags().StringVar(&headerFile, "header-file", "", "HTTP头部配置文件 (如 configs/headers.yaml),不存在时生成模板")
	rootCmd.Flags().BoolVar(&validateConfig, "validate-config", false, "验证配置文件正确性")

	// 爬取参数,默认值与配置文件默认值一致,只有显式指定时才覆盖配置
	rootCmd.PersistentFlags().IntVarP(&pageBudget, "budget", "b", 100, "页面预算,单次爬取最多访问的页面数")
	rootCmd.PersistentFlags().StringVarP(&mode, "mode", "m", "static", "爬取模式 (static|dynamic)")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 1, "并发获取页面的worker数")
	rootCmd.PersistentFlags().IntVar(&timeout, "timeout", 15, "单页超时(秒)")
	rootCmd.PersistentFlags().IntVarP(&waitTime, "wait", "w", 1, "动态模式页面渲染等待(秒)")
	rootCmd.PersistentFlags().BoolVar(&headless, "headless", true, "无头浏览器模式")
	rootCmd.PersistentFlags().BoolVar(&insecureTLS, "insecure", false, "跳过TLS证书验证")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "output", "报告输出目录")

	rootCmd.Flags().StringVarP(&targetURL, "url", "u", "", "种子URL (必需,除非使用 --url-file)")
	rootCmd.Flags().StringVarP(&urlFile, "url-file", "f", "", "包含URL列表的文件路径")
	rootCmd.Flags().IntVarP(&depth, "depth", "d", 2, "最大深度,0 表示只访问种子")
	rootCmd.Flags().BoolVar(&jsonOutput, "json", false, "以JSON输出完整结果")
	rootCmd.Flags().BoolVar(&noProgress, "no-progress", false, "不显示进度条")

	// 批量处理参数
	rootCmd.Flags().IntVar(&batchDelay, "batch-delay", 0, "批量处理URL间延迟(秒)")
	rootCmd.Flags().BoolVar(&continueOnError, "continue-on-error", true, "遇到错误继续处理")

	// serve 参数
	serveCmd.Flags().StringVar(&serveTransport, "transport", tools.TransportStdio, "MCP传输方式 (stdio|sse)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8080", "SSE监听地址")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
