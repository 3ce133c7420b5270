package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/RecoveryAshes/linkscout/internal/models"
)

// 报告文件名
const (
	ReportFileName   = "crawl_report.json"
	PagesFileName    = "pages.txt"
	FailuresFileName = "failures.json"
)

// Reporter 报告生成器
// 报告写入 <outputDir>/<host>/reports/
type Reporter struct {
	outputDir string
}

// NewReporter 创建报告生成器
func NewReporter(outputDir string) *Reporter {
	return &Reporter{outputDir: outputDir}
}

// ReportDir 返回某个主机的报告目录
func (r *Reporter) ReportDir(host string) string {
	return filepath.Join(r.outputDir, SafeDirName(host), "reports")
}

// GenerateReport 保存爬取报告,返回主报告路径
func (r *Reporter) GenerateReport(report *models.CrawlReport) (string, error) {
	reportsDir := r.ReportDir(report.Host)
	if err := os.MkdirAll(reportsDir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	if report.Pages == nil {
		report.Pages = []string{}
	}
	if report.Failures == nil {
		report.Failures = []models.PageFailure{}
	}

	reportData, err := report.ToJSON()
	if err != nil {
		return "", fmt.Errorf("序列化JSON失败: %w", err)
	}
	mainPath := filepath.Join(reportsDir, ReportFileName)
	if err := os.WriteFile(mainPath, reportData, 0644); err != nil {
		return "", fmt.Errorf("写入报告文件失败: %w", err)
	}

	// 纯文本地址列表,便于管道处理
	pagesPath := filepath.Join(reportsDir, PagesFileName)
	if err := os.WriteFile(pagesPath, []byte(strings.Join(report.Pages, "\n")+"\n"), 0644); err != nil {
		return "", fmt.Errorf("写入报告文件失败: %w", err)
	}

	if _, err := r.saveJSONReport(reportsDir, FailuresFileName, report.Failures); err != nil {
		return "", err
	}

	Infof("报告已生成: %s", reportsDir)
	return mainPath, nil
}

// saveJSONReport 保存JSON报告
func (r *Reporter) saveJSONReport(dir string, filename string, data interface{}) (string, error) {
	path := filepath.Join(dir, filename)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化JSON失败: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return "", fmt.Errorf("写入报告文件失败: %w", err)
	}

	Debugf("保存报告: %s", path)
	return path, nil
}

// NewProgressBar 创建进度条,输出到w(通常为os.Stderr)
func NewProgressBar(max int, description string, w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("页"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100 * time.Millisecond),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
