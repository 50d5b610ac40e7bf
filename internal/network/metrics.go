package network

import "github.com/prometheus/client_golang/prometheus"

// Метрики сетевого слоя. Регистрируются один раз на процесс, поэтому
// несколько Manager (хост и клиент в одном процессе) делят общие счётчики.

const (
	dirSent     = "sent"
	dirReceived = "received"
)

var (
	metricConnectedPeers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "network",
		Name:      "connected_peers",
		Help:      "Текущее количество живых TCP соединений.",
	})
	metricMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "network",
		Name:      "messages_total",
		Help:      "Число игровых сообщений по направлению и типу.",
	}, []string{"direction", "type"})
	metricBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "network",
		Name:      "bytes_total",
		Help:      "Объём полезной нагрузки в байтах по направлению.",
	}, []string{"direction"})
	metricDroppedLines = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "network",
		Name:      "dropped_lines_total",
		Help:      "Число строк, отброшенных из-за ошибок разбора.",
	})
	metricPeerRTT = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "network",
		Name:      "peer_rtt_seconds",
		Help:      "Последний замеренный round-trip до слота.",
	}, []string{"slot"})
)

func init() {
	prometheus.MustRegister(
		metricConnectedPeers,
		metricMessages,
		metricBytes,
		metricDroppedLines,
		metricPeerRTT,
	)
}
