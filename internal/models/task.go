package models

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus 分类任务状态
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"   // 等待调度
	JobStatusRunning   JobStatus = "running"   // 分页循环进行中
	JobStatusCompleted JobStatus = "completed" // 正常结束
	JobStatusFailed    JobStatus = "failed"    // 出错或panic退出
)

// SessionMode 页面会话实现类型
type SessionMode string

const (
	ModeDynamic SessionMode = "dynamic" // 无头浏览器 (go-rod)
	ModeStatic  SessionMode = "static"  // HTTP + HTML解析 (colly)
)

// JobStats 分类任务统计
type JobStats struct {
	PagesVisited   int     `json:"pages_visited"`
	TotalPages     int     `json:"total_pages"`
	OffersFound    int     `json:"offers_found"`
	RecordsWritten int     `json:"records_written"`
	FailedOffers   int     `json:"failed_offers"`
	EmptyPages     int     `json:"empty_pages"`
	Duration       float64 `json:"duration"` // 秒
}

// CategoryJob 分类任务
// Category 在任务生命周期内不可变
type CategoryJob struct {
	ID         string     `json:"id"`
	Category   string     `json:"category"`
	Status     JobStatus  `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Stats      JobStats   `json:"stats"`

	ErrorMessage string `json:"error_message,omitempty"`
}

// NewCategoryJob 创建新分类任务
func NewCategoryJob(category string) (*CategoryJob, error) {
	category = strings.TrimSpace(category)
	if err := ValidateCategory(category); err != nil {
		return nil, err
	}
	return &CategoryJob{
		ID:        generateID(),
		Category:  category,
		Status:    JobStatusPending,
		CreatedAt: time.Now(),
	}, nil
}

// MarkRunning 标记任务开始
func (j *CategoryJob) MarkRunning() {
	now := time.Now()
	j.StartedAt = &now
	j.Status = JobStatusRunning
}

// MarkFinished 标记任务结束, err为nil表示正常完成
func (j *CategoryJob) MarkFinished(err error) {
	now := time.Now()
	j.FinishedAt = &now
	if j.StartedAt != nil {
		j.Stats.Duration = now.Sub(*j.StartedAt).Seconds()
	}
	if err != nil {
		j.Status = JobStatusFailed
		j.ErrorMessage = err.Error()
		return
	}
	j.Status = JobStatusCompleted
}

// RetryConfig 页面加载重试策略
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" json:"max_attempts"` // 0 = 无限重试
	Backoff     time.Duration `mapstructure:"backoff" json:"backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff" json:"max_backoff"`
}

// Selectors 列表页和详情页的CSS选择器
type Selectors struct {
	PageCount   string `mapstructure:"page_count" json:"page_count"`
	OfferLink   string `mapstructure:"offer_link" json:"offer_link"`
	NoResults   string `mapstructure:"no_results" json:"no_results"`
	DetailReady string `mapstructure:"detail_ready" json:"detail_ready"`
	Brand       string `mapstructure:"brand" json:"brand"`
	Name        string `mapstructure:"name" json:"name"`
	Year        string `mapstructure:"year" json:"year"`
	Price       string `mapstructure:"price" json:"price"`
	Description string `mapstructure:"description" json:"description"`
	SpecRow     string `mapstructure:"spec_row" json:"spec_row"`
}

// DefaultSelectors 返回kolesa.kz的页面选择器
func DefaultSelectors() Selectors {
	return Selectors{
		PageCount:   ".pager>ul>li:last-child",
		OfferLink:   "div.a-card__info a.a-card__link",
		DetailReady: "div.offer__sidebar-info",
		Brand:       "[itemprop=brand]",
		Name:        "[itemprop=name]",
		Year:        "span.year",
		Price:       "div.offer__price",
		Description: "div.offer__description>.text",
		SpecRow:     "dl",
	}
}

// ScrapeConfig 单个分类任务的爬取配置
type ScrapeConfig struct {
	Company         string        `mapstructure:"company" json:"company"`
	BaseURL         string        `mapstructure:"base_url" json:"base_url"`
	ListingPath     string        `mapstructure:"listing_path" json:"listing_path"` // {category} 会被替换为分类名
	PageParam       string        `mapstructure:"page_param" json:"page_param"`
	Mode            SessionMode   `mapstructure:"mode" json:"mode"`
	Workers         int           `mapstructure:"workers" json:"workers"` // 每批并发数
	PageCooldown    time.Duration `mapstructure:"page_cooldown" json:"page_cooldown"`
	PageLoadTimeout time.Duration `mapstructure:"page_load_timeout" json:"page_load_timeout"`
	WaitTimeout     time.Duration `mapstructure:"wait_timeout" json:"wait_timeout"`
	Retry           RetryConfig   `mapstructure:"retry" json:"retry"`
	Selectors       Selectors     `mapstructure:"selectors" json:"selectors"`
}

// Validate 验证配置
func (c *ScrapeConfig) Validate() error {
	if strings.TrimSpace(c.Company) == "" {
		return fmt.Errorf("company不能为空")
	}
	if err := ValidateURL(c.BaseURL); err != nil {
		return fmt.Errorf("base_url无效: %w", err)
	}
	if !strings.Contains(c.ListingPath, CategoryPlaceholder) {
		return fmt.Errorf("listing_path必须包含%s", CategoryPlaceholder)
	}
	if c.PageParam == "" {
		return fmt.Errorf("page_param不能为空")
	}
	if c.Mode != ModeDynamic && c.Mode != ModeStatic {
		return fmt.Errorf("mode必须是%q或%q, 当前为%q", ModeDynamic, ModeStatic, c.Mode)
	}
	if c.Workers < 1 || c.Workers > 50 {
		return fmt.Errorf("workers必须在1-50之间")
	}
	if c.PageCooldown < 0 {
		return fmt.Errorf("page_cooldown不能为负数")
	}
	if c.PageLoadTimeout <= 0 || c.WaitTimeout <= 0 {
		return fmt.Errorf("page_load_timeout和wait_timeout必须大于0")
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts不能为负数")
	}
	if c.Retry.Backoff < 0 || c.Retry.MaxBackoff < 0 {
		return fmt.Errorf("retry退避时间不能为负数")
	}
	if c.Selectors.OfferLink == "" || c.Selectors.DetailReady == "" {
		return fmt.Errorf("selectors.offer_link和selectors.detail_ready不能为空")
	}
	return nil
}

// SupervisorConfig 分类任务调度配置
type SupervisorConfig struct {
	MaxActive       int           `mapstructure:"max_active" json:"max_active"`
	StaggerDelay    time.Duration `mapstructure:"stagger_delay" json:"stagger_delay"`
	ReclaimCooldown time.Duration `mapstructure:"reclaim_cooldown" json:"reclaim_cooldown"`
	PollInterval    time.Duration `mapstructure:"poll_interval" json:"poll_interval"`
}

// Validate 验证配置
func (c *SupervisorConfig) Validate() error {
	if c.MaxActive < 1 || c.MaxActive > 32 {
		return fmt.Errorf("max_active必须在1-32之间")
	}
	if c.StaggerDelay < 0 || c.ReclaimCooldown < 0 {
		return fmt.Errorf("stagger_delay和reclaim_cooldown不能为负数")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval必须大于0")
	}
	return nil
}
