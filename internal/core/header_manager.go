package core

import (
	"net/http"
	"sync"

	"github.com/RecoveryAshes/KolesaCrawl/internal/models"
	"github.com/RecoveryAshes/KolesaCrawl/internal/utils"
	"github.com/rs/zerolog"
)

const (
	// DefaultUserAgent 默认User-Agent
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/120.0.0.0 Safari/537.36"
)

// HeaderManager 管理页面会话使用的HTTP头部
// 实现 models.HeaderProvider 接口
type HeaderManager struct {
	// defaults 系统默认头部 (硬编码)
	defaults http.Header

	// config 配置文件 headers 段
	config http.Header

	// cli 从命令行参数解析的头部
	cli http.Header

	validator *utils.HeaderValidator
	redactor  *utils.HeaderRedactor
	logger    zerolog.Logger

	once     sync.Once
	merged   http.Header
	mergeErr error
}

// NewHeaderManager 创建头部管理器
// 参数:
//   - configHeaders: 配置文件中的头部 (viper 会把键名转为小写, 这里统一规范化)
//   - cliHeaders: 命令行传递的头部字符串列表
//
// 返回:
//   - *HeaderManager: 头部管理器实例
//   - error: 如果命令行参数解析失败
func NewHeaderManager(configHeaders map[string]string, cliHeaders []string, logger zerolog.Logger) (*HeaderManager, error) {
	hm := &HeaderManager{
		defaults:  getDefaultHeaders(),
		config:    make(http.Header),
		cli:       make(http.Header),
		validator: utils.NewHeaderValidator(),
		redactor:  utils.NewHeaderRedactor(),
		logger:    logger,
	}

	for name, value := range configHeaders {
		hm.config.Set(name, value)
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

// getDefaultHeaders 返回系统默认头部
func getDefaultHeaders() http.Header {
	return http.Header{
		"User-Agent":      []string{DefaultUserAgent},
		"Accept":          []string{"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
		"Accept-Language": []string{"ru-RU,ru;q=0.9,en;q=0.8"},
		"Accept-Encoding": []string{"gzip, deflate, br"},
	}
}

// Validate 验证所有头部的合法性
// 验证顺序: 默认 → 配置 → 命令行
func (hm *HeaderManager) Validate() error {
	if err := hm.validator.Validate(hm.defaults); err != nil {
		hm.logger.Error().Err(err).Msg("默认头部验证失败")
		return err
	}

	if err := hm.validator.Validate(hm.config); err != nil {
		hm.logger.Error().Err(err).Msg("配置文件头部验证失败")
		return err
	}

	if err := hm.validator.Validate(hm.cli); err != nil {
		hm.logger.Error().Err(err).Msg("命令行头部验证失败")
		return err
	}

	hm.logger.Debug().Msg("所有HTTP头部验证通过")
	return nil
}

// GetMergedHeaders 按优先级合并头部 (default < config < cli)
func (hm *HeaderManager) GetMergedHeaders() http.Header {
	result := make(http.Header)
	for _, layer := range []http.Header{hm.defaults, hm.config, hm.cli} {
		for name, values := range layer {
			result[name] = append([]string(nil), values...)
		}
	}
	return result
}

// GetSafeHeaders 返回脱敏后的头部 (用于日志)
func (hm *HeaderManager) GetSafeHeaders() map[string]string {
	return hm.redactor.Redact(hm.GetMergedHeaders())
}

// GetHeaders 实现 HeaderProvider 接口
// 首次调用时验证并合并, 之后返回副本
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	hm.once.Do(func() {
		if err := hm.Validate(); err != nil {
			hm.mergeErr = err
			return
		}
		hm.merged = hm.GetMergedHeaders()
		hm.logger.Debug().
			Str("headers", hm.redactor.RedactToString(hm.merged)).
			Msg("HTTP头部已就绪")
	})
	if hm.mergeErr != nil {
		return nil, hm.mergeErr
	}
	return hm.merged.Clone(), nil
}
