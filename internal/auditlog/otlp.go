package auditlog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/agentward/agentward/pkg/types"
)

// OTLPConfig configures the OTLP/HTTP audit export.
type OTLPConfig struct {
	Endpoint string // host:port of the collector
	Insecure bool
	Headers  map[string]string

	BatchTimeout time.Duration
	ServiceName  string
}

// OTLPRecorder ships audit records to an OpenTelemetry collector as log
// records. Export errors are dropped by the batching processor so that
// audit recording never blocks the caller.
type OTLPRecorder struct {
	provider *sdklog.LoggerProvider
	logger   otellog.Logger
}

// OpenOTLP creates an OTLP/HTTP audit recorder. The context is used for
// exporter construction only.
func OpenOTLP(ctx context.Context, cfg OTLPConfig) (*OTLPRecorder, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("otlp endpoint is empty")
	}

	opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlploghttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlploghttp.WithHeaders(cfg.Headers))
	}

	exporter, err := otlploghttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp log exporter: %w", err)
	}

	batchTimeout := cfg.BatchTimeout
	if batchTimeout == 0 {
		batchTimeout = 5 * time.Second
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "agentward"
	}

	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("otlp resource: %w", err)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter,
			sdklog.WithExportInterval(batchTimeout))),
	)

	return &OTLPRecorder{
		provider: provider,
		logger:   provider.Logger("agentward/auditlog"),
	}, nil
}

// Record converts the audit record to an OTEL log record and hands it to
// the batching processor. It never returns a transport error.
func (r *OTLPRecorder) Record(ctx context.Context, rec types.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	var lr otellog.Record
	lr.SetTimestamp(rec.Timestamp)
	lr.SetBody(otellog.StringValue(fmt.Sprintf("%s %s", rec.AnalysisType, rec.Action)))
	if rec.IsThreat {
		lr.SetSeverity(otellog.SeverityWarn)
	} else {
		lr.SetSeverity(otellog.SeverityInfo)
	}

	lr.AddAttributes(
		otellog.String("audit.id", rec.ID),
		otellog.String("audit.tenant_id", rec.TenantID),
		otellog.Int64("audit.agent_id", rec.AgentID),
		otellog.String("audit.analysis_type", rec.AnalysisType),
		otellog.String("audit.detection_type", rec.DetectionType),
		otellog.String("audit.input_hash", rec.InputHash),
		otellog.Bool("audit.is_threat", rec.IsThreat),
		otellog.Float64("audit.score", rec.Score),
		otellog.String("audit.reason", rec.Reason),
		otellog.String("audit.action", rec.Action),
		otellog.String("audit.sender_key", rec.SenderKey),
	)

	r.logger.Emit(ctx, lr)
	return nil
}

// Shutdown flushes pending records and stops the provider.
func (r *OTLPRecorder) Shutdown(ctx context.Context) error {
	return r.provider.Shutdown(ctx)
}
