// Package telemetry 负责 OpenTelemetry 指标导出的初始化。
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/tao-tracker/tao-tracker/internal/config"
	"github.com/tao-tracker/tao-tracker/internal/version"
)

const (
	serviceName    = "tao-tracker"
	exportInterval = 30 * time.Second
)

// ShutdownFunc 在进程退出前刷新并关闭指标导出器。
type ShutdownFunc func(ctx context.Context) error

func noop(context.Context) error { return nil }

// Setup 在配置了 OTLPEndpoint 时安装基于 gRPC 的周期性指标导出，并注册为全局 MeterProvider。
// 未配置时保持 otel 默认的空实现，缓存指标的记录开销可以忽略。
func Setup(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (ShutdownFunc, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
	if endpoint == "" {
		return noop, nil
	}

	exporter, err := otlpmetricgrpc.New(ctx, endpointOption(endpoint))
	if err != nil {
		return nil, fmt.Errorf("otlp metric exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version.Version),
		attribute.String("bittensor.network", cfg.Network),
	))
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(provider)

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"action":   "telemetry_init",
			"endpoint": endpoint,
			"interval": exportInterval.String(),
		}).Info("otlp metric export enabled")
	}
	return provider.Shutdown, nil
}

// endpointOption 同时支持 host:port 与带 scheme 的 URL，http:// 视为明文连接。
func endpointOption(endpoint string) otlpmetricgrpc.Option {
	if strings.Contains(endpoint, "://") {
		return otlpmetricgrpc.WithEndpointURL(endpoint)
	}
	return otlpmetricgrpc.WithEndpoint(endpoint)
}
