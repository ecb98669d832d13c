package grpcservice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	metricExport "go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	traceExport "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "raffled"

func initOtelSDK(
	ctx context.Context, otelCollectorUrl string,
) (func(context.Context) error, error) {
	endpoint := strings.TrimPrefix(strings.TrimSuffix(otelCollectorUrl, "/"), "http://")

	traceExp, err := traceExport.New(
		ctx, traceExport.WithEndpoint(endpoint), traceExport.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(instrumentationName),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)

	metricExp, err := metricExport.New(
		ctx, metricExport.WithEndpoint(endpoint), metricExport.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(
			metricExp, sdkmetric.WithInterval(5*time.Second),
		)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	log.Info("otel sdk initialized")

	shutdown := func(ctx context.Context) error {
		err1 := tp.Shutdown(ctx)
		err2 := mp.Shutdown(ctx)
		if err1 != nil {
			return err1
		}
		return err2
	}
	return shutdown, nil
}

// otelMiddleware traces every http request and records its count and
// latency. It falls back to the noop providers when the sdk is not set up.
func otelMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer(instrumentationName)
	meter := otel.Meter(instrumentationName)

	requests, err := meter.Int64Counter(
		"raffled_http_requests_total",
		metric.WithDescription("number of http requests served"),
	)
	if err != nil {
		log.WithError(err).Warn("failed to create request counter")
	}
	latency, err := meter.Float64Histogram(
		"raffled_http_request_duration_seconds",
		metric.WithDescription("latency of http requests"),
		metric.WithUnit("s"),
	)
	if err != nil {
		log.WithError(err).Warn("failed to create latency histogram")
	}

	return func(c *gin.Context) {
		route := c.FullPath()
		if len(route) <= 0 {
			route = "unmatched"
		}

		start := time.Now()
		ctx, span := tracer.Start(
			c.Request.Context(), c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
		)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		attrs := []attribute.KeyValue{
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		}
		span.SetAttributes(attrs...)
		if status >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("status %d", status))
		}

		if requests != nil {
			requests.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
		if latency != nil {
			latency.Record(
				ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...),
			)
		}
	}
}

// loggerMiddleware logs every request at debug level through logrus.
func loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
			"caller":  c.GetHeader("X-Caller"),
		}).Debugf("%s %s", c.Request.Method, c.Request.URL.Path)
	}
}
