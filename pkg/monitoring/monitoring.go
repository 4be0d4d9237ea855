package monitoring

import (
	"context"

	gcptrace "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

type Monitoring interface {
	Start(ctx context.Context)
	Stop(ctx context.Context)
}

type openTelemetry struct {
	logger      *logrus.Logger
	serviceName string
	environment string
	projectID   string
	provider    *sdktrace.TracerProvider
}

func NewOpenTelemetry(logger *logrus.Logger, serviceName, environment, projectID string) Monitoring {
	return &openTelemetry{
		logger:      logger,
		serviceName: serviceName,
		environment: environment,
		projectID:   projectID,
	}
}

// Start implements Monitoring. Without a project id the tracer provider still
// runs so spans propagate, it just exports nowhere.
func (m *openTelemetry) Start(ctx context.Context) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(m.serviceName),
			attribute.String("environment", m.environment),
		)),
	}

	if m.projectID != "" {
		exporter, err := gcptrace.New(gcptrace.WithProjectID(m.projectID))
		if err != nil {
			m.logger.WithError(err).WithField("project_id", m.projectID).Error("failed to create trace exporter, traces will not be exported")
		} else {
			opts = append(opts, sdktrace.WithBatcher(exporter))
		}
	}

	m.provider = sdktrace.NewTracerProvider(opts...)

	otel.SetTracerProvider(m.provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

// Stop implements Monitoring.
func (m *openTelemetry) Stop(ctx context.Context) {
	if m.provider != nil {
		m.provider.Shutdown(ctx)
	}
}
