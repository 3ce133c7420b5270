package main

import (
	"fmt"

	"github.com/RecoveryAshes/linkscout/internal/models"
)

// ValidateFlags 验证命令行参数和合并后的爬取配置
func ValidateFlags(targetURL, urlFile string, config models.CrawlConfig) error {
	if targetURL != "" && urlFile != "" {
		return fmt.Errorf("--url 和 --url-file 不能同时使用")
	}

	if targetURL != "" {
		if err := models.ValidateURL(targetURL); err != nil {
			return fmt.Errorf("无效的目标URL: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return fmt.Errorf("参数无效: %w", err)
	}

	return nil
}
