package models

import (
	"encoding/json"
	"time"
)

// RunReport 运行报告
type RunReport struct {
	// 时间信息
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"` // 秒

	// 统计信息
	TotalJobs     int `json:"total_jobs"`
	CompletedJobs int `json:"completed_jobs"`
	FailedJobs    int `json:"failed_jobs"`
	SkippedJobs   int `json:"skipped_jobs"` // 重复或非法的分类名

	// 任务列表
	Jobs []CategoryJob `json:"jobs"`

	// 输出路径
	OutputDir string `json:"output_dir"`

	// 配置快照
	Scrape     ScrapeConfig     `json:"scrape"`
	Supervisor SupervisorConfig `json:"supervisor"`
}

// TotalRecords 所有任务写入的记录数
func (r *RunReport) TotalRecords() int {
	total := 0
	for _, j := range r.Jobs {
		total += j.Stats.RecordsWritten
	}
	return total
}

// ToJSON 序列化为JSON
func (r *RunReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON 从JSON反序列化
func (r *RunReport) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}
