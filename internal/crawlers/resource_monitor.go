package crawlers

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceMonitor 系统资源监控器
// 根据可用内存和CPU负载计算并发worker数与标签页数的上限
type ResourceMonitor struct {
	config ResourceMonitorConfig
	logger zerolog.Logger

	// 系统总内存(字节)
	totalMemory uint64

	// 最近一次采样
	lastMemStats runtime.MemStats
	mu           sync.RWMutex

	lastCPUUsage float64
	cpuUsageMu   sync.RWMutex

	// CalculateMaxWorkers 结果缓存1秒
	cachedMax     int
	lastCacheTime time.Time
	cacheMu       sync.Mutex

	cancelFunc context.CancelFunc
	isRunning  bool
}

// ResourceMonitorConfig 资源监控器配置
type ResourceMonitorConfig struct {
	SafetyReserveMemory int64 // 安全保留内存(字节)
	SafetyThreshold     int64 // 可用内存阈值(字节)
	CPULoadThreshold    int   // CPU负载阈值(%), >=200 视为禁用
	MaxWorkersLimit     int   // 绝对上限
	WorkerMemoryUsage   int64 // 单个worker(标签页)平均内存消耗(字节)
}

// MemoryStatus 内存状态
type MemoryStatus struct {
	TotalMemory     uint64
	AllocatedMemory uint64
	AvailableMemory int64
	MemoryPressure  string // normal / warning / critical / emergency
}

// DefaultResourceMonitorConfig 默认配置
func DefaultResourceMonitorConfig() ResourceMonitorConfig {
	return ResourceMonitorConfig{
		SafetyReserveMemory: 1024 * 1024 * 1024,
		SafetyThreshold:     500 * 1024 * 1024,
		CPULoadThreshold:    80,
		MaxWorkersLimit:     16,
		WorkerMemoryUsage:   100 * 1024 * 1024,
	}
}

// NewResourceMonitor 创建资源监控器
func NewResourceMonitor(config ResourceMonitorConfig, logger zerolog.Logger) *ResourceMonitor {
	if config.WorkerMemoryUsage <= 0 {
		config.WorkerMemoryUsage = 100 * 1024 * 1024
	}
	if config.MaxWorkersLimit < 1 {
		config.MaxWorkersLimit = 1
	}

	var totalMem uint64
	vmStat, err := mem.VirtualMemory()
	if err != nil {
		logger.Warn().Err(err).Msg("获取系统内存失败,使用默认值4GB")
		totalMem = 4 * 1024 * 1024 * 1024
	} else {
		totalMem = vmStat.Total
		logger.Debug().Msgf("系统总内存: %.2f GB", float64(totalMem)/(1024*1024*1024))
	}

	rm := &ResourceMonitor{
		config:      config,
		logger:      logger,
		totalMemory: totalMem,
	}
	runtime.ReadMemStats(&rm.lastMemStats)
	return rm
}

// StartMonitoring 启动后台采样,重复调用无副作用
func (rm *ResourceMonitor) StartMonitoring(interval time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.isRunning {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rm.cancelFunc = cancel
	rm.isRunning = true

	go rm.monitoringLoop(ctx, interval)
}

func (rm *ResourceMonitor) monitoringLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var memStats runtime.MemStats
			runtime.ReadMemStats(&memStats)

			rm.mu.Lock()
			rm.lastMemStats = memStats
			rm.mu.Unlock()

			usage := rm.sampleCPU()
			rm.cpuUsageMu.Lock()
			rm.lastCPUUsage = usage
			rm.cpuUsageMu.Unlock()
		}
	}
}

// sampleCPU 所有核心的平均使用率(%)
func (rm *ResourceMonitor) sampleCPU() float64 {
	percentages, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(percentages) == 0 {
		rm.logger.Debug().Err(err).Msg("获取CPU使用率失败")
		return 0
	}
	return percentages[0]
}

// StopMonitoring 停止后台采样
func (rm *ResourceMonitor) StopMonitoring() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.isRunning && rm.cancelFunc != nil {
		rm.cancelFunc()
		rm.isRunning = false
		rm.cancelFunc = nil
	}
}

func (rm *ResourceMonitor) availableMemory() (allocated uint64, available int64) {
	rm.mu.RLock()
	allocated = rm.lastMemStats.Alloc
	rm.mu.RUnlock()
	return allocated, int64(rm.totalMemory) - int64(allocated) - rm.config.SafetyReserveMemory
}

// CalculateMaxWorkers 按可用内存、CPU核数和配置上限计算允许的并发数,至少为1
func (rm *ResourceMonitor) CalculateMaxWorkers() int {
	rm.cacheMu.Lock()
	defer rm.cacheMu.Unlock()

	if rm.cachedMax > 0 && time.Since(rm.lastCacheTime) < time.Second {
		return rm.cachedMax
	}

	_, available := rm.availableMemory()

	byMemory := 1
	if available > rm.config.SafetyThreshold {
		byMemory = int((available - rm.config.SafetyThreshold) / rm.config.WorkerMemoryUsage)
	}

	result := min(byMemory, runtime.NumCPU(), rm.config.MaxWorkersLimit)
	if result < 1 {
		result = 1
	}

	rm.cachedMax = result
	rm.lastCacheTime = time.Now()
	return result
}

// CheckResourceAvailability 检查当前是否允许再创建一个worker(标签页)
func (rm *ResourceMonitor) CheckResourceAvailability() (canCreate bool, reason string) {
	_, available := rm.availableMemory()
	if available < rm.config.SafetyThreshold {
		return false, fmt.Sprintf("内存不足(当前%dMB)", available/(1024*1024))
	}

	if rm.config.CPULoadThreshold < 200 {
		rm.cpuUsageMu.RLock()
		usage := rm.lastCPUUsage
		rm.cpuUsageMu.RUnlock()

		if usage > float64(rm.config.CPULoadThreshold) {
			return false, fmt.Sprintf("CPU负载过高(当前%.1f%%)", usage)
		}
	}

	return true, ""
}

// GetMemoryStatus 当前内存状态
func (rm *ResourceMonitor) GetMemoryStatus() MemoryStatus {
	allocated, available := rm.availableMemory()

	var pressure string
	switch mb := available / (1024 * 1024); {
	case mb < 200:
		pressure = "emergency"
	case mb < 300:
		pressure = "critical"
	case mb < 500:
		pressure = "warning"
	default:
		pressure = "normal"
	}

	return MemoryStatus{
		TotalMemory:     rm.totalMemory,
		AllocatedMemory: allocated,
		AvailableMemory: available,
		MemoryPressure:  pressure,
	}
}

// ShouldScaleDown 内存紧张时建议缩减到的数量
//   - < 200MB: 缩减至1
//   - < 300MB: 缩减一半
func (rm *ResourceMonitor) ShouldScaleDown(current int) (bool, int) {
	_, available := rm.availableMemory()
	mb := available / (1024 * 1024)

	switch {
	case mb < 200:
		rm.logger.Error().Msgf("内存紧急状态(当前%dMB),缩减至1个", mb)
		return current > 1, 1
	case mb < 300:
		target := max(current/2, 1)
		rm.logger.Warn().Msgf("内存严重不足(当前%dMB),缩减至%d个", mb, target)
		return target < current, target
	default:
		return false, current
	}
}
