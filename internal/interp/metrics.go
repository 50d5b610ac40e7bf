package interp

import "github.com/prometheus/client_golang/prometheus"

var (
	metricOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "interp",
		Name:      "operations_total",
		Help:      "Число операций сглаживания по режимам (interpolation, extrapolation, prediction).",
	}, []string{"mode"})
	metricBufferDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "interp",
		Name:      "buffer_depth",
		Help:      "Текущая глубина буфера состояний.",
	})
)

func init() {
	prometheus.MustRegister(metricOperations, metricBufferDepth)
}
