package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNamedLoggerWritesComponentField(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf}).Named("votes")

	log.WithField("founder_id", "f1").Info("vote recorded")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["component"] != "votes" {
		t.Fatalf("component = %v, want votes", entry["component"])
	}
	if entry["founder_id"] != "f1" {
		t.Fatalf("founder_id = %v, want f1", entry["founder_id"])
	}
	if entry["msg"] != "vote recorded" {
		t.Fatalf("msg = %v", entry["msg"])
	}
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "chatty", Output: &buf})

	log.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug output written at default level: %q", buf.String())
	}
	log.Info("shown")
	if buf.Len() == 0 {
		t.Fatal("info output missing")
	}
}

func TestNopDiscards(t *testing.T) {
	log := NewNop()
	log.Error("nothing")
}
