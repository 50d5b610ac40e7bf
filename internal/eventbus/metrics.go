package eventbus

import (
	"github.com/prometheus/client_golang/prometheus"
)

// busCollector снимает Stats шины в момент scrape, без фонового опроса.
// Коллектору достаточно интерфейса EventBus, реализация шины не важна.
type busCollector struct {
	bus EventBus

	published *prometheus.Desc
	consumed  *prometheus.Desc
	dropped   *prometheus.Desc
	inflight  *prometheus.Desc
}

// RegisterBusMetrics подключает счётчики шины к глобальному регистру
// Prometheus. Возвращённая функция снимает регистрацию при остановке.
func RegisterBusMetrics(bus EventBus) func() {
	c := &busCollector{
		bus: bus,
		published: prometheus.NewDesc(
			"eventbus_published_total",
			"Событий, принятых шиной.",
			nil, nil),
		consumed: prometheus.NewDesc(
			"eventbus_consumed_total",
			"Событий, доставленных подписчикам.",
			nil, nil),
		dropped: prometheus.NewDesc(
			"eventbus_dropped_total",
			"Событий, потерянных из-за переполнения очередей.",
			nil, nil),
		inflight: prometheus.NewDesc(
			"eventbus_inflight",
			"Событий в приёмном канале, ещё не разложенных по подписчикам.",
			nil, nil),
	}
	prometheus.MustRegister(c)
	return func() { prometheus.Unregister(c) }
}

func (c *busCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.published
	ch <- c.consumed
	ch <- c.dropped
	ch <- c.inflight
}

func (c *busCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.bus.Metrics()
	ch <- prometheus.MustNewConstMetric(c.published, prometheus.CounterValue, float64(stats.Published))
	ch <- prometheus.MustNewConstMetric(c.consumed, prometheus.CounterValue, float64(stats.Consumed))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(stats.Dropped))
	ch <- prometheus.MustNewConstMetric(c.inflight, prometheus.GaugeValue, float64(stats.InFlight))
}
