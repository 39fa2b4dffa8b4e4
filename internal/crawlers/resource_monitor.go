package crawlers

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceMonitorConfig 资源监控器配置
type ResourceMonitorConfig struct {
	MinAvailableMemoryMB int     // 启动新任务所需的最小可用内存(MB), 0表示不检查
	CPULoadThreshold     float64 // CPU负载阈值(%), 0表示不检查
}

// ResourceSample 一次资源采样
type ResourceSample struct {
	AvailableMemory uint64  // 可用内存(字节)
	TotalMemory     uint64  // 系统总内存(字节)
	CPUPercent      float64 // 所有核心平均使用率
	SampledAt       time.Time
}

// ResourceMonitor 系统资源监控器
// 调度器在启动新的分类任务前调用 Admit, 资源不足时推迟到下一轮
type ResourceMonitor struct {
	config ResourceMonitorConfig
	logger zerolog.Logger
	sample func() (ResourceSample, error)

	mu   sync.Mutex
	last ResourceSample
}

// NewResourceMonitor 创建资源监控器
func NewResourceMonitor(config ResourceMonitorConfig, logger zerolog.Logger) *ResourceMonitor {
	rm := &ResourceMonitor{
		config: config,
		logger: logger,
		sample: sampleSystem,
	}

	if s, err := rm.sample(); err != nil {
		logger.Warn().Err(err).Msg("获取系统资源失败")
	} else {
		rm.last = s
		logger.Info().Msgf("系统总内存: %.2f GB, 可用: %.2f GB",
			float64(s.TotalMemory)/(1024*1024*1024), float64(s.AvailableMemory)/(1024*1024*1024))
	}
	return rm
}

// sampleSystem 使用gopsutil采样内存和CPU
func sampleSystem() (ResourceSample, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return ResourceSample{}, fmt.Errorf("获取系统内存失败: %w", err)
	}

	// 100毫秒采样间隔, perCPU=false 返回平均值
	percentages, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		return ResourceSample{}, fmt.Errorf("获取CPU使用率失败: %w", err)
	}
	var cpuPercent float64
	if len(percentages) > 0 {
		cpuPercent = percentages[0]
	}

	return ResourceSample{
		AvailableMemory: vm.Available,
		TotalMemory:     vm.Total,
		CPUPercent:      cpuPercent,
		SampledAt:       time.Now(),
	}, nil
}

// Admit 检查当前资源是否允许启动新任务
// 采样失败时放行, 不因监控故障阻塞调度
func (rm *ResourceMonitor) Admit() (bool, string) {
	if rm.config.MinAvailableMemoryMB <= 0 && rm.config.CPULoadThreshold <= 0 {
		return true, ""
	}

	s, err := rm.sample()
	if err != nil {
		rm.logger.Warn().Err(err).Msg("资源采样失败,跳过资源检查")
		return true, ""
	}

	rm.mu.Lock()
	rm.last = s
	rm.mu.Unlock()

	if rm.config.MinAvailableMemoryMB > 0 {
		availableMB := s.AvailableMemory / (1024 * 1024)
		if availableMB < uint64(rm.config.MinAvailableMemoryMB) {
			return false, fmt.Sprintf("内存不足(当前%dMB, 需要%dMB)", availableMB, rm.config.MinAvailableMemoryMB)
		}
	}

	if rm.config.CPULoadThreshold > 0 && s.CPUPercent > rm.config.CPULoadThreshold {
		return false, fmt.Sprintf("CPU负载过高(当前%.1f%%)", s.CPUPercent)
	}

	return true, ""
}

// LastSample 最近一次采样结果
func (rm *ResourceMonitor) LastSample() ResourceSample {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.last
}
