package otel

import (
	"context"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = abc , bad, =x,tenant=ledger")
	if len(got) != 2 || got["api-key"] != "abc" || got["tenant"] != "ledger" {
		t.Fatalf("unexpected headers %v", got)
	}
}

func TestConfigFromEnvDisabledWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")
	cfg := ConfigFromEnv("rebased", "dev")
	if cfg.Traces || cfg.Metrics {
		t.Fatalf("expected exporters disabled, got %+v", cfg)
	}
	if cfg.SampleRatio != 0.25 {
		t.Fatalf("expected sample ratio 0.25, got %v", cfg.SampleRatio)
	}
	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitRequiresServiceName(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected missing service name to fail")
	}
}
