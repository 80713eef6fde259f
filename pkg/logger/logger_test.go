package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewRenamesKeys(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug")
	log.Debug("hello")
	_ = log.Sync()

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	for _, key := range []string{"timestamp", "level", "message"} {
		if _, ok := line[key]; !ok {
			t.Fatalf("missing key %q in %v", key, line)
		}
	}
	if line["message"] != "hello" {
		t.Fatalf("message = %v", line["message"])
	}
}

func TestNewUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "chatty")
	log.Debug("dropped")
	_ = log.Sync()
	if buf.Len() != 0 {
		t.Fatalf("debug line written at info level: %q", buf.String())
	}
}

func TestTokenPreview(t *testing.T) {
	if got := TokenPreview("short"); got != "short" {
		t.Fatalf("TokenPreview(short) = %q", got)
	}
	if got := TokenPreview("abcdefghijklmnopqrstuvwxyz"); got != "abcdefghijklmnopqrst..." {
		t.Fatalf("TokenPreview(long) = %q", got)
	}
}
