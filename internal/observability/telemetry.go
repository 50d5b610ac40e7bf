package observability

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/suntank/hungryHatchling-sub000/internal/logging"
)

// endpointEnv переопределяет адрес OTLP коллектора.
// Пустое значение оставляет стандартный localhost:4318.
const endpointEnv = "HATCHLING_OTLP_ENDPOINT"

// InitTelemetry настраивает OTLP экспортер и глобальный TracerProvider.
// Коллектор в LAN обычно без TLS, поэтому экспортер ходит по plain HTTP.
// Возвращает shutdown, которую нужно вызвать при завершении процесса.
func InitTelemetry(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithInsecure()}
	endpoint := os.Getenv(endpointEnv)
	if endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
	} else {
		endpoint = "localhost:4318"
	}

	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	// instance.id отличает хост от клиентов на одной машине
	instanceID := uuid.NewString()
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceInstanceID(instanceID),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exp, trace.WithBatchTimeout(3*time.Second)),
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.AlwaysSample())),
	)
	otel.SetTracerProvider(tp)

	logging.Info("📡 OpenTelemetry: OTLP → %s, service=%s, instance=%s", endpoint, serviceName, instanceID)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}
