package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMiddleware считает HTTP-метрики диагностического API.
// Маршрут /metrics добавляется отдельно через RegisterMetricsEndpoint.
// Использование:
//
//	mw := middleware.NewPrometheusMiddleware("diag_api")
//	r.Use(mw.Handler())
//	mw.RegisterMetricsEndpoint(r)
//
// Метрики:
// * <service>_http_requests_total{method,path,status} — counter
// * <service>_http_request_duration_seconds{method,path} — histogram
// * <service>_http_requests_inflight — gauge
//
// Ошибки отдельного счётчика не имеют: 4xx/5xx видны по метке status.
type PrometheusMiddleware struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
}

// NewPrometheusMiddleware создаёт middleware и регистрирует метрики
// в дефолтном регистре Prometheus.
func NewPrometheusMiddleware(service string) *PrometheusMiddleware {
	pm := &PrometheusMiddleware{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: service,
			Name:      "http_requests_total",
			Help:      "Обработанные HTTP-запросы по методу, маршруту и статусу.",
		}, []string{"method", "path", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: service,
			Name:      "http_request_duration_seconds",
			Help:      "Время обработки HTTP-запроса по методу и маршруту.",
			// API локальный, поэтому сетка смещена в миллисекунды
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"method", "path"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: service,
			Name:      "http_requests_inflight",
			Help:      "Запросы, находящиеся в обработке прямо сейчас.",
		}),
	}

	prometheus.MustRegister(pm.requests, pm.duration, pm.inflight)
	return pm
}

// Handler возвращает gin.HandlerFunc для router.Use().
func (pm *PrometheusMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		pm.inflight.Inc()
		start := time.Now()

		c.Next()

		pm.inflight.Dec()

		path := c.FullPath()
		if path == "" {
			// 404 и прочие запросы мимо маршрутов
			path = c.Request.URL.Path
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		pm.requests.WithLabelValues(method, path, status).Inc()
		pm.duration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// RegisterMetricsEndpoint добавляет GET /metrics в указанный router.
func (pm *PrometheusMiddleware) RegisterMetricsEndpoint(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
