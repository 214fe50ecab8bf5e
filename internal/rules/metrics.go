package rules

import (
	"math"
)

// 指标名称
const (
	MetricProcessingEfficiency = "processing_efficiency"
	MetricThroughputPerHour    = "throughput_per_hour"
	MetricScrapRate            = "scrap_rate"
	MetricQualityRate          = "quality_rate"
	MetricStartVarianceHours   = "start_time_variance_hours"
	MetricEndVarianceHours     = "end_time_variance_hours"
	MetricCompletion           = "completion_percentage"
)

// Metrics 派生指标,缺少操作数或分母为零的指标不出现
type Metrics map[string]float64

// ComputeMetrics 计算制造指标(不做舍入)
func (e *Engine) ComputeMetrics(s Snapshot) Metrics {
	m := Metrics{}

	if eff, ok := s.ProcessingEfficiency(); ok {
		m.set(MetricProcessingEfficiency, eff)
	}

	if s.QtyProcessed != nil && s.TActualProcessingMin != nil && *s.TActualProcessingMin > 0 {
		m.set(MetricThroughputPerHour, float64(*s.QtyProcessed)/(*s.TActualProcessingMin/60))
	}

	if rate, ok := s.ScrapRate(); ok {
		m.set(MetricScrapRate, rate)
		m.set(MetricQualityRate, 1-rate)
	}

	if s.PlannedStartAt != nil && s.ActualStartAt != nil {
		m.set(MetricStartVarianceHours, s.ActualStartAt.Sub(*s.PlannedStartAt).Hours())
	}
	if s.PlannedEndAt != nil && s.ActualEndAt != nil {
		m.set(MetricEndVarianceHours, s.ActualEndAt.Sub(*s.PlannedEndAt).Hours())
	}

	if s.QtyDesired != nil && s.QtyProcessed != nil && *s.QtyDesired > 0 {
		m.set(MetricCompletion, math.Min(float64(*s.QtyProcessed)/float64(*s.QtyDesired), 1.0))
	}
	return m
}

func (m Metrics) set(name string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	m[name] = v
}
