package api

import (
	"context"

	"github.com/AbuAli85/business-services-hub-sub014/internal/config"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

var tracerProvider *tracesdk.TracerProvider

// 探活和抓取指标的请求不产生 span
var untracedPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// InitTracing 初始化 OpenTelemetry，span 经 Jaeger collector 导出
func InitTracing(cfg config.TracingConfig) error {
	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerEndpoint)))
	if err != nil {
		return err
	}

	name := cfg.ServiceName
	if name == "" {
		name = serviceName
	}
	res, err := resource.New(context.Background(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(name),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return err
	}

	tracerProvider = tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(res),
		tracesdk.WithSampler(samplerFor(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

// samplerFor 上游已采样的请求跟随上游决定，根 span 按比例采样
func samplerFor(ratio float64) tracesdk.Sampler {
	switch {
	case ratio >= 1:
		return tracesdk.ParentBased(tracesdk.AlwaysSample())
	case ratio <= 0:
		return tracesdk.ParentBased(tracesdk.NeverSample())
	default:
		return tracesdk.ParentBased(tracesdk.TraceIDRatioBased(ratio))
	}
}

// TracingMiddleware 追踪中间件，span 名为路由模板
func TracingMiddleware(service string) gin.HandlerFunc {
	if service == "" {
		service = serviceName
	}
	traced := otelgin.Middleware(service)
	return func(c *gin.Context) {
		if untracedPaths[c.Request.URL.Path] {
			c.Next()
			return
		}
		traced(c)
	}
}

// ShutdownTracing 刷出剩余 span 并关闭
func ShutdownTracing(ctx context.Context) error {
	if tracerProvider == nil {
		return nil
	}
	return tracerProvider.Shutdown(ctx)
}
