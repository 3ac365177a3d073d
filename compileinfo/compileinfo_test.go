package compileinfo

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	CompileInfo{Package: "wext", Commit: "abc123", Modified: true}.Log(&log)

	out := buf.String()
	if !strings.Contains(out, `"commit":"abc123"`) || !strings.Contains(out, `"modified":true`) {
		t.Fatalf("Unexpected log line %q", out)
	}
}

func TestString(t *testing.T) {
	c := CompileInfo{Package: "wext", GoVersion: "go1.18", Commit: "abc123", CommitTime: "t", Modified: true}
	if got := c.String(); got != "wext go1.18@abc123 t (modified)" {
		t.Fatalf("Unexpected string %q", got)
	}

	if p := c.Params(); p["commit"] != "abc123" {
		t.Fatalf("Unexpected params %v", p)
	}
}
