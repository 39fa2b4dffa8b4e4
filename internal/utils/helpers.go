package utils

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/RecoveryAshes/KolesaCrawl/internal/models"
	"github.com/rs/zerolog"
)

// ReadCategoriesFromFile 从文件中读取分类列表
// 每行一个分类, 忽略空行和 # 注释行, 非法分类名跳过并记录警告
func ReadCategoriesFromFile(path string, logger zerolog.Logger) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开分类文件失败: %w", err)
	}
	defer file.Close()

	categories := make([]string, 0)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if err := models.ValidateCategory(line); err != nil {
			logger.Warn().Int("line", lineNum).Str("category", line).Err(err).Msg("跳过无效分类")
			continue
		}

		categories = append(categories, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取分类文件失败: %w", err)
	}

	if len(categories) == 0 {
		return nil, fmt.Errorf("分类文件中没有有效的分类")
	}

	logger.Info().Int("count", len(categories)).Str("file", path).Msg("从文件加载分类")
	return categories, nil
}

// SleepContext 等待d或ctx结束, ctx结束时返回ctx.Err()
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
