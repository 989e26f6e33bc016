package telemetry

import (
	"context"
	"runtime"
	"showroom-approver/internal/components/assert"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	report_perf_cpu        = "perf.cpu-percent"
	report_perf_memory     = "perf.allocated-mb"
	report_perf_goroutines = "perf.goroutines"
)

type perfGauges struct {
	cpu        metric.Float64Gauge
	memory     metric.Int64Gauge
	goroutines metric.Int64Gauge
}

func newPerfGauges() perfGauges {
	meter := otel.Meter("showroom-approver/perf_stats")
	cpuGauge, _ := meter.Float64Gauge("cpu_usage")
	memoryGauge, _ := meter.Int64Gauge("allocated_mb")
	goroutineGauge, _ := meter.Int64Gauge("goroutine_count")
	return perfGauges{cpu: cpuGauge, memory: memoryGauge, goroutines: goroutineGauge}
}

// PerfStats is one sample of the process' resource usage.
type PerfStats struct {
	CpuPercent  float64
	AllocatedMb int64
	Goroutines  int64
}

// SamplePerfStats measures cpu usage over the given window and reads the runtime stats.
func SamplePerfStats(ctx context.Context, window time.Duration) (PerfStats, error) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := PerfStats{
		AllocatedMb: int64(memStats.Alloc / 1_000_000),
		Goroutines:  int64(runtime.NumGoroutine()),
	}
	usage, err := cpu.PercentWithContext(ctx, window, false)
	if err != nil {
		return stats, err
	}
	if len(usage) > 0 {
		stats.CpuPercent = usage[0]
	}
	return stats, nil
}

// InstrumentPerfStats samples the process every interval until ctx is done, the samples go to
// the global meter and to tel.
func InstrumentPerfStats(ctx context.Context, tel API, interval time.Duration) {
	assert.PositiveDuration(interval)
	gauges := newPerfGauges()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				stats, err := SamplePerfStats(ctx, time.Second)
				if err != nil {
					tel.ReportWarning(report_perf_cpu, err)
				} else {
					gauges.cpu.Record(ctx, stats.CpuPercent)
					tel.ReportCount(report_perf_cpu, int64(stats.CpuPercent))
				}
				gauges.memory.Record(ctx, stats.AllocatedMb)
				gauges.goroutines.Record(ctx, stats.Goroutines)
				tel.ReportCount(report_perf_memory, stats.AllocatedMb)
				tel.ReportCount(report_perf_goroutines, stats.Goroutines)
			case <-ctx.Done():
				return
			}
		}
	}()
}
