package invalidation

import "github.com/prometheus/client_golang/prometheus"

type metricSet struct {
	msgs     *prometheus.CounterVec
	proc     prometheus.Histogram
	lagGauge prometheus.Gauge
}

func newMetricSet(r prometheus.Registerer) *metricSet {
	m := &metricSet{
		msgs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_inval_msgs_total",
				Help: "Catalog invalidation messages by result.",
			},
			[]string{"result"},
		),
		proc: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "catalog_inval_processing_seconds",
				Help:    "Processing time for one invalidation message.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
		),
		lagGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_inval_lag_seconds",
				Help: "Approximate lag: now - message.timestamp.",
			},
		),
	}
	if r != nil {
		r.MustRegister(m.msgs, m.proc, m.lagGauge)
	}
	return m
}
