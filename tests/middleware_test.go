package tests

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suntank/hungryHatchling-sub000/internal/middleware"
)

// isolatedRegistry подменяет глобальный регистр Prometheus на свежий.
// Вызывать ДО NewPrometheusMiddleware: конструктор регистрирует метрики
// в том регистре, который видит в момент вызова.
func isolatedRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = registry
	return registry
}

// doGet прогоняет GET-запрос через роутер
func doGet(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestPrometheusMiddleware_CountsByStatus(t *testing.T) {
	registry := isolatedRegistry()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.NewPrometheusMiddleware("diag_status").Handler())

	r.GET("/ok", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })
	r.GET("/missing", func(c *gin.Context) { c.JSON(404, gin.H{"error": "нет такого"}) })
	r.GET("/boom", func(c *gin.Context) { c.JSON(500, gin.H{"error": "сломалось"}) })

	for _, path := range []string{"/ok", "/ok", "/missing", "/boom"} {
		doGet(r, path)
	}

	families, err := registry.Gather()
	require.NoError(t, err)

	// Ошибки видны по метке status, отдельного счётчика нет
	byStatus := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "diag_status_http_requests_total" {
			continue
		}
		for _, m := range mf.Metric {
			for _, label := range m.Label {
				if label.GetName() == "status" {
					byStatus[label.GetValue()] += m.Counter.GetValue()
				}
			}
		}
	}

	assert.Equal(t, float64(2), byStatus["200"], "два успешных запроса")
	assert.Equal(t, float64(1), byStatus["404"], "один запрос мимо")
	assert.Equal(t, float64(1), byStatus["500"], "одна серверная ошибка")
}

func TestPrometheusMiddleware_DurationPerRoute(t *testing.T) {
	registry := isolatedRegistry()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.NewPrometheusMiddleware("diag_duration").Handler())

	r.GET("/api/session", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	for i := 0; i < 3; i++ {
		doGet(r, "/api/session")
	}

	families, err := registry.Gather()
	require.NoError(t, err)

	var samples uint64
	var labels int
	for _, mf := range families {
		if mf.GetName() != "diag_duration_http_request_duration_seconds" {
			continue
		}
		require.Len(t, mf.Metric, 1, "один маршрут — одна серия")
		samples = mf.Metric[0].Histogram.GetSampleCount()
		labels = len(mf.Metric[0].Label)
	}

	assert.Equal(t, uint64(3), samples, "гистограмма должна накопить все запросы")
	assert.Equal(t, 2, labels, "в гистограмме только method и path, без status")
}

func TestPrometheusMiddleware_InflightRequests(t *testing.T) {
	registry := isolatedRegistry()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.NewPrometheusMiddleware("diag_inflight").Handler())

	entered := make(chan struct{})
	release := make(chan struct{})
	r.GET("/slow", func(c *gin.Context) {
		close(entered)
		<-release
		c.JSON(200, gin.H{"ok": true})
	})

	done := make(chan struct{})
	go func() {
		doGet(r, "/slow")
		close(done)
	}()

	<-entered
	assert.Equal(t, float64(1), gaugeValue(t, registry, "diag_inflight_http_requests_inflight"),
		"во время обработки должен числиться один запрос")

	close(release)
	<-done
	assert.Equal(t, float64(0), gaugeValue(t, registry, "diag_inflight_http_requests_inflight"),
		"после ответа счётчик обязан вернуться к нулю")
}

// gaugeValue достаёт значение gauge-метрики по имени
func gaugeValue(t *testing.T, registry *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			require.NotEmpty(t, mf.Metric)
			return mf.Metric[0].Gauge.GetValue()
		}
	}
	t.Fatalf("метрика %s не найдена", name)
	return 0
}

func TestPrometheusMiddleware_MetricsEndpoint(t *testing.T) {
	isolatedRegistry()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	promMw := middleware.NewPrometheusMiddleware("diag_endpoint")
	r.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(r)

	r.GET("/api/test", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })
	assert.Equal(t, 200, doGet(r, "/api/test").Code)

	w := doGet(r, "/metrics")
	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, w.Body.String(), "# HELP", "эндпоинт должен отдавать текстовый формат Prometheus")
}

func TestRequestLogger_TraceID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.NewRequestLogger().Handler())

	var capturedTraceID string
	r.GET("/test", func(c *gin.Context) {
		traceID, exists := c.Get("trace_id")
		require.True(t, exists, "trace_id должен попадать в контекст запроса")
		capturedTraceID = traceID.(string)
		c.JSON(200, gin.H{"trace_id": capturedTraceID})
	})

	w := doGet(r, "/test")
	assert.Equal(t, 200, w.Code)
	assert.NotEmpty(t, capturedTraceID)
	assert.Contains(t, w.Body.String(), capturedTraceID)
}

func TestRequestLogger_PolledRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.NewRequestLogger().Handler())

	// Опросные маршруты логируются тише, но trace_id получают как все
	r.GET("/health", func(c *gin.Context) {
		_, exists := c.Get("trace_id")
		require.True(t, exists)
		c.JSON(200, gin.H{"status": "ok"})
	})

	assert.Equal(t, 200, doGet(r, "/health").Code)
}

func TestMiddleware_Integration(t *testing.T) {
	registry := isolatedRegistry()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.NewRequestLogger().Handler())
	r.Use(middleware.NewPrometheusMiddleware("diag_combo").Handler())

	r.GET("/api/session", func(c *gin.Context) {
		traceID, _ := c.Get("trace_id")
		c.JSON(200, gin.H{"status": "ok", "trace_id": traceID})
	})

	for i := 0; i < 5; i++ {
		assert.Equal(t, 200, doGet(r, "/api/session").Code)
	}

	families, err := registry.Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != "diag_combo_http_requests_total" {
			continue
		}
		for _, m := range mf.Metric {
			total += m.Counter.GetValue()
		}
	}
	assert.Equal(t, float64(5), total, "оба middleware вместе не должны терять запросы")
}

// BenchmarkPrometheusMiddleware измеряет overhead на запрос
func BenchmarkPrometheusMiddleware(b *testing.B) {
	isolatedRegistry()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.NewPrometheusMiddleware("bench").Handler())

	r.GET("/bench", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, "/bench", nil)
			r.ServeHTTP(w, req)
		}
	})
}
