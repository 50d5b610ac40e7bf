package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/suntank/hungryHatchling-sub000/internal/logging"
)

// Опросные маршруты дёргаются дашбордами раз в секунду,
// на уровне INFO они забивают журнал
var polledRoutes = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// RequestLogger снабжает каждый HTTP-запрос trace-ID и пишет парные
// строки запрос/ответ через глобальный logging пакет.
type RequestLogger struct{}

func NewRequestLogger() *RequestLogger { return &RequestLogger{} }

func (rl *RequestLogger) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := requestTraceID(c)
		c.Set("trace_id", traceID)

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method

		logFn := logging.Info
		if polledRoutes[path] {
			logFn = logging.Debug
		}

		logFn("[HTTP] ▶ %s %s ip=%s trace=%s", method, path, c.ClientIP(), traceID)

		start := time.Now()
		c.Next()

		logFn("[HTTP] ◀ %s %s %d %s %dB trace=%s",
			method, path, c.Writer.Status(), time.Since(start), c.Writer.Size(), traceID)
	}
}

// requestTraceID берёт trace-id из OpenTelemetry спана, когда он есть,
// иначе выдаёт запросу собственный UUID
func requestTraceID(c *gin.Context) string {
	if sc := trace.SpanFromContext(c.Request.Context()).SpanContext(); sc.IsValid() {
		return sc.TraceID().String()
	}
	return uuid.NewString()
}
