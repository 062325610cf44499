package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewLoggerWithServiceStampsService(t *testing.T) {
	l := NewLoggerWithService("lookout")
	var buf bytes.Buffer
	l.SetOutput(&buf)

	l.WithField("k", "v").Info("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON output: %v", err)
	}
	if line["service"] != "lookout" {
		t.Fatalf("expected service field, got %v", line["service"])
	}
	if line["k"] != "v" {
		t.Fatalf("expected custom field, got %v", line["k"])
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("expected a logger for nil input")
	}
	l := NewDiscardLogger()
	if OrDiscard(l) != l {
		t.Fatal("expected the same logger back")
	}
}
