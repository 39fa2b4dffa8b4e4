package main

import (
	"fmt"
	"strings"

	"github.com/RecoveryAshes/KolesaCrawl/internal/models"
	"github.com/RecoveryAshes/KolesaCrawl/internal/utils"
	"github.com/rs/zerolog"
)

// ValidateFlags 验证命令行标志, 0 和空字符串表示未指定
func ValidateFlags(workers, maxActive int, mode string) error {
	if workers != 0 && (workers < 1 || workers > 50) {
		return fmt.Errorf("并发数必须在1-50之间,当前值: %d", workers)
	}

	if maxActive != 0 && (maxActive < 1 || maxActive > 32) {
		return fmt.Errorf("分类任务数必须在1-32之间,当前值: %d", maxActive)
	}

	switch models.SessionMode(mode) {
	case "", models.ModeDynamic, models.ModeStatic:
	default:
		return fmt.Errorf("无效的会话模式: %s (有效值: dynamic, static)", mode)
	}

	return nil
}

// ResolveCategories 确定要爬取的分类
// 命令行 --category 和 --categories-file 任一指定时替换配置文件中的列表, 两者合并
func ResolveCategories(fromConfig, fromFlags []string, file string, logger zerolog.Logger) ([]string, error) {
	if len(fromFlags) == 0 && file == "" {
		return trimCategories(fromConfig), nil
	}

	result := trimCategories(fromFlags)
	if file != "" {
		fromFile, err := utils.ReadCategoriesFromFile(file, logger)
		if err != nil {
			return nil, fmt.Errorf("读取分类文件失败: %w", err)
		}
		result = append(result, fromFile...)
	}
	return result, nil
}

func trimCategories(in []string) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
