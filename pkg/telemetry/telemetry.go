package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlplog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/denysvitali/ncds-go/pkg/config"
)

// InstrumentationName is the tracer and logger name used across the client
const InstrumentationName = "ncds"

// Initialize sets up OpenTelemetry tracing and logging using autoexport.
// The returned function flushes and shuts both providers down.
func Initialize(cfg config.TelemetryConfig, logger *logrus.Logger) (func(), error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("ncds-client"),
			semconv.ServiceVersionKey.String("1.0.0"),
		),
	)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	spanExporter, err := autoexport.NewSpanExporter(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	var logProvider *sdklog.LoggerProvider
	logExporter, err := autoexport.NewLogExporter(ctx)
	if err != nil {
		logger.Warnf("Failed to create log exporter: %v", err)
	} else {
		logProvider = sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
			sdklog.WithResource(res),
		)
		global.SetLoggerProvider(logProvider)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.Endpoint != "" {
		logger.Debugf("Telemetry exporting to %s", cfg.Endpoint)
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := tp.Shutdown(ctx); err != nil {
			logger.Warnf("Error shutting down tracer provider: %v", err)
		}
		if logProvider != nil {
			if err := logProvider.Shutdown(ctx); err != nil {
				logger.Warnf("Error shutting down log provider: %v", err)
			}
		}
	}, nil
}

// Report records the outcome of an operation on the active span and as a
// debug record in both logrus and the OpenTelemetry log pipeline.
func Report(ctx context.Context, logger *logrus.Logger, operation string, fields map[string]any) {
	attrs := make([]attribute.KeyValue, 0, len(fields))
	logFields := logrus.Fields{"operation": operation}
	for key, value := range fields {
		attrs = append(attrs, toAttribute("ncds."+key, value))
		logFields[key] = value
	}

	trace.SpanFromContext(ctx).SetAttributes(attrs...)

	logger.WithFields(logFields).Debug("Operation completed")

	payload, err := json.Marshal(fields)
	if err != nil {
		logger.Warnf("Failed to marshal %s report: %v", operation, err)
		return
	}

	var record otlplog.Record
	now := time.Now()
	record.SetTimestamp(now)
	record.SetObservedTimestamp(now)
	record.SetSeverity(otlplog.SeverityDebug)
	record.SetSeverityText("DEBUG")
	record.SetBody(otlplog.StringValue(string(payload)))
	record.AddAttributes(otlplog.String("operation", operation))
	global.GetLoggerProvider().Logger(InstrumentationName).Emit(ctx, record)
}

func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}
