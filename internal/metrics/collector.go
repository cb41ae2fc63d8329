package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ASRStats provides the metrics collector access to handler state.
type ASRStats interface {
	InFlight() int64
	ProviderName() string
	Model() string
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	stats ASRStats

	inFlight  *prometheus.Desc
	modelInfo *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// stats may be nil (in-flight reports 0, model info is omitted).
func NewCollector(stats ASRStats) *Collector {
	return &Collector{
		stats: stats,
		inFlight: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "transcriptions_in_flight"),
			"Current number of /asr requests inside the provider.",
			nil, nil,
		),
		modelInfo: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "model_info"),
			"Configured speech-to-text provider and model. Always 1.",
			[]string{"provider", "model"}, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.inFlight
	ch <- c.modelInfo
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.stats == nil {
		ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, float64(c.stats.InFlight()))
	ch <- prometheus.MustNewConstMetric(c.modelInfo, prometheus.GaugeValue, 1, c.stats.ProviderName(), c.stats.Model())
}
