package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestNewProviders_EmptyEndpoint(t *testing.T) {
	ctx := context.Background()
	for _, endpoint := range []string{"", "   "} {
		p, err := NewProviders(ctx, Options{Endpoint: endpoint, ServiceName: "helpdesk-auth"})
		if err != nil {
			t.Fatalf("NewProviders(%q): %v", endpoint, err)
		}
		if p.TracerProvider == nil || p.MeterProvider == nil || p.LoggerProvider == nil || p.Shutdown == nil {
			t.Fatalf("providers incomplete: %+v", p)
		}
		if err := p.Shutdown(ctx); err != nil {
			t.Errorf("no-op shutdown: %v", err)
		}
	}
}

func TestNewProviders_InvalidEndpoint(t *testing.T) {
	for _, endpoint := range []string{"://invalid", "http://[invalid", "http://"} {
		if _, err := NewProviders(context.Background(), Options{Endpoint: endpoint}); err == nil {
			t.Errorf("NewProviders(%q) should fail", endpoint)
		}
	}
}

func TestTarget(t *testing.T) {
	tests := []struct {
		endpoint string
		override bool
		host     string
		insecure bool
	}{
		{"localhost:4317", false, "localhost:4317", true},
		{"http://collector:4317/v1/traces", false, "collector:4317", true},
		{"https://collector:4317", false, "collector:4317", false},
		{"https://collector:4317", true, "collector:4317", true},
		{"http://collector:4317?x=1", false, "collector:4317", true},
	}
	for _, tc := range tests {
		host, insecure, err := Target(tc.endpoint, tc.override)
		if err != nil {
			t.Errorf("Target(%q): %v", tc.endpoint, err)
			continue
		}
		if host != tc.host || insecure != tc.insecure {
			t.Errorf("Target(%q, %v) = %q, %v; want %q, %v", tc.endpoint, tc.override, host, insecure, tc.host, tc.insecure)
		}
	}
}

func TestNewProviders_WithEndpoint(t *testing.T) {
	// gRPC exporters dial lazily, so construction succeeds without a collector.
	ctx := context.Background()
	p, err := NewProviders(ctx, Options{Endpoint: "localhost:4317", ServiceName: "helpdesk-auth", ServiceVersion: "test"})
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	shutdownCtx, cancel := context.WithCancel(ctx)
	cancel()
	_ = p.Shutdown(shutdownCtx)
}

func TestSetGlobal(t *testing.T) {
	p, err := NewProviders(context.Background(), Options{ServiceName: "helpdesk-auth"})
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	prevTP, prevMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	defer func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	}()

	p.SetGlobal()
	if otel.GetTracerProvider() != p.TracerProvider {
		t.Error("tracer provider not installed")
	}
	if otel.GetMeterProvider() != p.MeterProvider {
		t.Error("meter provider not installed")
	}
	if otel.GetTextMapPropagator() == nil {
		t.Error("propagator not installed")
	}
	(&Providers{}).SetGlobal()
}
