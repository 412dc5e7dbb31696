package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerWritesKeyValues(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(&buf, "segment")

	log.Info("page converted", "page", 3, "total", 10)

	out := buf.String()
	for _, want := range []string{"component=segment", "page=3", "total=10", `msg="page converted"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestLoggerDropsDanglingKey(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(&buf, "ocr")

	log.Warn("odd pairs", "path", "/a.jpg", "orphan")

	out := buf.String()
	if strings.Contains(out, "orphan") || strings.Contains(out, "BADKEY") {
		t.Errorf("dangling key leaked into %q", out)
	}
	if !strings.Contains(out, "path=/a.jpg") {
		t.Errorf("output %q missing path", out)
	}
}

func TestSetLevel(t *testing.T) {
	defer SetLevel("info")

	var buf bytes.Buffer
	log := NewLoggerTo(&buf, "test")

	if err := SetLevel("warn"); err != nil {
		t.Fatalf("SetLevel() error = %v", err)
	}
	log.Info("hidden")
	log.Warn("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("info record emitted at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("warn record missing")
	}

	if err := SetLevel("loud"); err == nil {
		t.Errorf("SetLevel(loud) should fail")
	}
}
