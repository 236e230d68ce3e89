package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics groups the counters recorded by the service layer.
type Metrics struct {
	CascadeDeletes      metric.Int64Counter
	BlobsRemoved        metric.Int64Counter
	BlobRemovalFailures metric.Int64Counter
	PlaceholdersCreated metric.Int64Counter
	Uploads             metric.Int64Counter
	UploadBytes         metric.Int64Counter
}

// NewMetrics registers the counters on provider, or on a no-op provider when
// it is nil. Instruments that fail to register fall back to no-ops.
func NewMetrics(provider metric.MeterProvider) *Metrics {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter(instrumentationName)
	return &Metrics{
		CascadeDeletes:      counter(meter, "filedepot.category.cascade_deletes", "Category cascade deletes committed"),
		BlobsRemoved:        counter(meter, "filedepot.blob.removed", "Blobs removed from the store"),
		BlobRemovalFailures: counter(meter, "filedepot.blob.removal_failures", "Blob removals that failed and were skipped"),
		PlaceholdersCreated: counter(meter, "filedepot.blob.placeholders", "Placeholder blobs synthesized for missing files"),
		Uploads:             counter(meter, "filedepot.attachment.uploads", "Attachments stored"),
		UploadBytes:         counter(meter, "filedepot.attachment.upload_bytes", "Bytes written to the blob store"),
	}
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}

// Add increments c by n with an optional operation label.
func Add(ctx context.Context, c metric.Int64Counter, n int64, op string) {
	if c == nil || n == 0 {
		return
	}
	if op == "" {
		c.Add(ctx, n)
		return
	}
	c.Add(ctx, n, metric.WithAttributes(attribute.String("op", op)))
}
