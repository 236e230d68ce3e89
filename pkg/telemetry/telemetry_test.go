package telemetry

import (
	"context"
	"errors"
	"strings"
	"testing"

	promclient "github.com/prometheus/client_golang/prometheus"

	"github.com/filedepot/filedepot/pkg/config"
)

func TestNewMetricsWithoutProvider(t *testing.T) {
	m := NewMetrics(nil)
	if m.CascadeDeletes == nil || m.BlobsRemoved == nil || m.PlaceholdersCreated == nil {
		t.Fatal("NewMetrics() left a counter nil")
	}
	Add(context.Background(), m.BlobsRemoved, 3, "test")
	Add(context.Background(), m.Uploads, 1, "")
	Add(context.Background(), nil, 1, "test")
}

func TestInitDisabled(t *testing.T) {
	tel, err := Init(&config.TelemetryConfig{Enabled: false})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if tel.Metrics == nil || tel.Metrics.Uploads == nil {
		t.Fatal("disabled telemetry must still hand out counters")
	}
	tel.Shutdown()
}

func TestInitExportsServiceCounters(t *testing.T) {
	registry := promclient.NewRegistry()
	tel, err := initWith(&config.TelemetryConfig{
		Enabled:           true,
		PrometheusEnabled: true,
		ServiceName:       "filedepot-test",
	}, registry)
	if err != nil {
		t.Fatalf("initWith() error = %v", err)
	}
	defer tel.Shutdown()

	Add(context.Background(), tel.Metrics.BlobRemovalFailures, 2, "category_delete")

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "filedepot_blob_removal_failures") {
			if got := f.GetMetric()[0].GetCounter().GetValue(); got != 2 {
				t.Errorf("removal failures = %v, want 2", got)
			}
			return
		}
	}
	t.Error("blob removal failure counter was not exported")
}

func TestStartSpanWithoutInit(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test")
	if ctx == nil || span == nil {
		t.Fatal("StartSpan() returned nil")
	}
	EndSpan(span, errors.New("boom"))
}
