package crawlers

import (
	"errors"
	"strings"

	"github.com/RecoveryAshes/KolesaCrawl/internal/models"
	"github.com/rs/zerolog"
)

// Extractor 详情页记录提取器
// 每个字段独立查找, 缺失时取默认值, 不会因单个字段失败而放弃整条记录
type Extractor struct {
	company   string
	selectors models.Selectors
	logger    zerolog.Logger
}

// NewExtractor 创建提取器
func NewExtractor(company string, selectors models.Selectors, logger zerolog.Logger) *Extractor {
	return &Extractor{
		company:   company,
		selectors: selectors,
		logger:    logger,
	}
}

// Extract 从已加载的详情页提取记录
func (e *Extractor) Extract(s PageSession, offerURL string) *models.Listing {
	logger := e.logger.With().Str("offer", offerURL).Logger()

	raw := models.RawListing{
		Company:     e.company,
		URL:         offerURL,
		Brand:       e.text(s, "brand", e.selectors.Brand, logger),
		Name:        e.text(s, "name", e.selectors.Name, logger),
		Year:        e.text(s, "year", e.selectors.Year, logger),
		Price:       e.text(s, "price", e.selectors.Price, logger),
		Description: cleanDescription(e.text(s, "description", e.selectors.Description, logger)),
		Specs:       e.specRows(s, logger),
	}

	return models.NewListing(raw)
}

// text 读取单个字段文本, 元素缺失返回空字符串
func (e *Extractor) text(s PageSession, field, selector string, logger zerolog.Logger) string {
	if selector == "" {
		return ""
	}
	el, err := s.FindOne(selector)
	if err != nil {
		if errors.Is(err, ErrElementNotFound) {
			logger.Warn().Str("field", field).Str("selector", selector).Msg("字段不存在,使用默认值")
		} else {
			logger.Warn().Err(err).Str("field", field).Msg("读取字段失败,使用默认值")
		}
		return ""
	}
	text, err := el.Text()
	if err != nil {
		logger.Warn().Err(err).Str("field", field).Msg("读取字段文本失败,使用默认值")
		return ""
	}
	return strings.TrimSpace(text)
}

// specRows 读取规格行, 文本必须恰好是 "标签\n值" 两行, 其他格式跳过
func (e *Extractor) specRows(s PageSession, logger zerolog.Logger) []models.SpecRow {
	if e.selectors.SpecRow == "" {
		return nil
	}
	els, err := s.FindAll(e.selectors.SpecRow)
	if err != nil {
		logger.Warn().Err(err).Msg("读取规格行失败")
		return nil
	}

	rows := make([]models.SpecRow, 0, len(els))
	for _, el := range els {
		text, err := el.Text()
		if err != nil {
			continue
		}
		parts := strings.Split(strings.TrimSpace(text), "\n")
		if len(parts) != 2 {
			continue
		}
		rows = append(rows, models.SpecRow{Label: parts[0], Value: parts[1]})
	}
	logger.Debug().Int("spec_rows", len(rows)).Int("elements", len(els)).Msg("规格行")
	return rows
}

// cleanDescription 换行替换为 " | ", 逗号替换为 " _ "
func cleanDescription(s string) string {
	s = strings.ReplaceAll(s, "\n", " | ")
	return strings.ReplaceAll(s, ",", " _ ")
}
