package log

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func TestEntryWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	Configure(&buf, "info", "json")
	defer Configure(os.Stdout, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	WithChat("551123457765@s.whatsapp.net").WithMessageID("ABC").Info("sent %d", 1)

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("log line is not json: %v (%q)", err, buf.String())
	}
	if line["chat"] != "551123457765@s.whatsapp.net" || line["message_id"] != "ABC" {
		t.Fatalf("missing fields: %v", line)
	}
	if line["message"] != "sent 1" || line["level"] != "info" {
		t.Fatalf("unexpected line: %v", line)
	}
}

func TestDebugGatedByLevel(t *testing.T) {
	var buf bytes.Buffer
	Configure(&buf, "error", "json")
	defer Configure(os.Stdout, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	Debugf("hidden")
	Infof("hidden too")
	Errorf("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug/info should be filtered: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("error should be logged: %q", out)
	}
}
