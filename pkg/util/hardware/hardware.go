// Package hardware 提供与运行环境资源相关的查询。
package hardware

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"go.uber.org/zap"

	"github.com/kykrueger/openbis-sub009/pkg/log"
)

// GetCPUNum 返回可用的逻辑 CPU 数量，gopsutil 查询失败时退回 runtime.NumCPU。
func GetCPUNum() int {
	cur, err := cpu.Counts(true)
	if err != nil || cur <= 0 {
		log.Warn("failed to get cpu counts, fall back to runtime.NumCPU", zap.Error(err))
		return runtime.NumCPU()
	}
	// GOMAXPROCS 可能已被 automaxprocs 按容器配额调低
	if procs := runtime.GOMAXPROCS(0); procs > 0 && procs < cur {
		return procs
	}
	return cur
}
