package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestConfigureSetsServiceField(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf, Service: "test-service", Version: "1.2.3"})
	L().Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if entry["service"] != "test-service" {
		t.Errorf("service = %v, want test-service", entry["service"])
	}
	if entry["version"] != "1.2.3" {
		t.Errorf("version = %v, want 1.2.3", entry["version"])
	}
}

func TestFromContextAttachesCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf})

	ctx := WithCorrelationID(context.Background(), "job-42")
	FromContext(ctx).Info().Msg("working")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if entry["correlation_id"] != "job-42" {
		t.Errorf("correlation_id = %v, want job-42", entry["correlation_id"])
	}
}

func TestCorrelationIDMissingReturnsEmpty(t *testing.T) {
	if id := CorrelationID(context.Background()); id != "" {
		t.Errorf("expected empty correlation id, got %q", id)
	}
}

func TestWithComponentAttachesComponentField(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf})

	WithComponent("orchestrator").Info().Msg("tick")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if entry["component"] != "orchestrator" {
		t.Errorf("component = %v, want orchestrator", entry["component"])
	}
}
