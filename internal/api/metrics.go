package api

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcStats отдаёт показатели процесса для диагностических эндпоинтов
type ProcStats struct {
	start time.Time
	proc  *process.Process
}

// NewProcStats запоминает время старта и хэндл собственного процесса.
// Хэндл переживает все запросы: CPUPercent считает дельту между
// последовательными вызовами.
func NewProcStats() *ProcStats {
	ps := &ProcStats{start: time.Now()}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		ps.proc = proc
	}
	return ps
}

// Uptime возвращает время работы в человекочитаемом виде
func (ps *ProcStats) Uptime() string {
	total := int(time.Since(ps.start).Seconds())
	days, rem := total/86400, total%86400
	hours, rem := rem/3600, rem%3600
	minutes, seconds := rem/60, rem%60

	var b strings.Builder
	if days > 0 {
		fmt.Fprintf(&b, "%dд ", days)
	}
	if b.Len() > 0 || hours > 0 {
		fmt.Fprintf(&b, "%dч ", hours)
	}
	if b.Len() > 0 || minutes > 0 {
		fmt.Fprintf(&b, "%dм ", minutes)
	}
	fmt.Fprintf(&b, "%dс", seconds)
	return b.String()
}

// MemoryMB возвращает текущий heap процесса в мегабайтах
func (ps *ProcStats) MemoryMB() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return float64(m.Alloc) / 1024 / 1024
}

// CPUPercent возвращает загрузку CPU нашим процессом.
// Когда хэндл процесса недоступен, отдаёт системную загрузку.
func (ps *ProcStats) CPUPercent() float64 {
	if ps.proc != nil {
		if percent, err := ps.proc.CPUPercent(); err == nil {
			return percent
		}
	}
	return ps.SystemCPUPercent()
}

// SystemCPUPercent возвращает общую загрузку CPU системы.
// Замер короткий, чтобы не подвешивать HTTP-обработчик.
func (ps *ProcStats) SystemCPUPercent() float64 {
	percents, err := cpu.Percent(200*time.Millisecond, false)
	if err != nil || len(percents) == 0 {
		return 0
	}
	return percents[0]
}

// MemoryDetails возвращает развёрнутую статистику памяти и GC
func (ps *ProcStats) MemoryDetails() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"alloc_mb":       float64(m.Alloc) / 1024 / 1024,
		"total_alloc_mb": float64(m.TotalAlloc) / 1024 / 1024,
		"sys_mb":         float64(m.Sys) / 1024 / 1024,
		"heap_alloc_mb":  float64(m.HeapAlloc) / 1024 / 1024,
		"heap_sys_mb":    float64(m.HeapSys) / 1024 / 1024,
		"next_gc_mb":     float64(m.NextGC) / 1024 / 1024,
		"num_gc":         m.NumGC,
		"goroutines":     runtime.NumGoroutine(),
	}
}
