// Package output 负责把车辆记录追加写入每个分类对应的CSV文件
package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/RecoveryAshes/KolesaCrawl/internal/models"
	"github.com/rs/zerolog"
)

// RecordWriter 记录写入接口
type RecordWriter interface {
	Append(category string, listing *models.Listing) error
}

// CSVWriter 按分类追加写入CSV
// 路径: <baseDir>/<company>/<category>.csv
// 同一分类的写入由互斥锁串行化, 表头只在文件不存在时写入一次
type CSVWriter struct {
	baseDir string
	company string
	logger  zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCSVWriter 创建CSV写入器
func NewCSVWriter(baseDir, company string, logger zerolog.Logger) *CSVWriter {
	return &CSVWriter{
		baseDir: baseDir,
		company: company,
		logger:  logger,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Path 分类对应的CSV路径
func (w *CSVWriter) Path(category string) string {
	return filepath.Join(w.baseDir, w.company, category+".csv")
}

// categoryLock 获取分类锁
func (w *CSVWriter) categoryLock(category string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()

	lock, ok := w.locks[category]
	if !ok {
		lock = &sync.Mutex{}
		w.locks[category] = lock
	}
	return lock
}

// Append 追加一条记录
func (w *CSVWriter) Append(category string, listing *models.Listing) error {
	if err := models.ValidateCategory(category); err != nil {
		return err
	}

	lock := w.categoryLock(category)
	lock.Lock()
	defer lock.Unlock()

	path := w.Path(category)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建输出目录失败 [%s]: %w", filepath.Dir(path), err)
	}

	needHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needHeader = true
	} else if err != nil {
		return fmt.Errorf("检查输出文件失败 [%s]: %w", path, err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("打开输出文件失败 [%s]: %w", path, err)
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	if needHeader {
		if err := cw.Write(models.ListingHeader()); err != nil {
			return fmt.Errorf("写入表头失败: %w", err)
		}
		w.logger.Debug().Str("path", path).Msg("创建输出文件")
	}
	if err := cw.Write(listing.Row()); err != nil {
		return fmt.Errorf("写入记录失败: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("写入记录失败: %w", err)
	}
	return nil
}
