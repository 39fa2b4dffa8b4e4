package models

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// CategoryPlaceholder listing_path中的分类占位符
const CategoryPlaceholder = "{category}"

// ValidateURL 验证URL
func ValidateURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("无效的URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL必须是HTTP或HTTPS协议")
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL必须包含主机名")
	}
	return nil
}

// ValidateCategory 验证分类名
// 分类名会同时出现在URL路径和输出文件名中
func ValidateCategory(category string) error {
	if category == "" {
		return fmt.Errorf("分类名不能为空")
	}
	if strings.ContainsAny(category, "/\\?#%: \t") || category == "." || category == ".." {
		return fmt.Errorf("分类名包含非法字符: %q", category)
	}
	return nil
}

// generateID 生成唯一ID
func generateID() string {
	return uuid.New().String()
}
