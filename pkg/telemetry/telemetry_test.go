package telemetry

import (
	"context"
	"testing"
)

func TestInit(t *testing.T) {
	shutdown, err := Init("test-service", "v0.0.1")
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if shutdown == nil {
		t.Fatal("Shutdown function should not be nil")
	}

	if err := shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestInitWithConfigRejectsUnknownExporter(t *testing.T) {
	if _, err := InitWithConfig("test-service", "v0.0.1", Config{Exporter: "jaeger"}); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func TestInitWithConfigRequiresOTLPEndpoint(t *testing.T) {
	if _, err := InitWithConfig("test-service", "v0.0.1", Config{Exporter: "otlp"}); err == nil {
		t.Fatal("expected error when otlp endpoint is empty")
	}
}
