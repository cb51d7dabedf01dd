package log_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"github.com/yeisme/sourcelens/pkg/log"
)

func TestGinWriterSplitsLines(t *testing.T) {
	var buf bytes.Buffer

	l := zerolog.New(&buf)
	w := log.NewGinWriter(&l, zerolog.WarnLevel)

	in := "[GIN-debug] GET /api/v1/health --> handler (3 handlers)\n\n[GIN-debug] Listening on :8080\n"

	n, err := w.Write([]byte(in))
	if err != nil || n != len(in) {
		t.Fatalf("Write = %d, %v", n, err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d events: %q", len(lines), buf.String())
	}

	var ev struct {
		Level   string `json:"level"`
		Source  string `json:"source"`
		Message string `json:"message"`
	}
	if err := sonic.UnmarshalString(lines[1], &ev); err != nil {
		t.Fatal(err)
	}

	if ev.Level != "warn" || ev.Source != "gin" || ev.Message != "Listening on :8080" {
		t.Errorf("event = %+v", ev)
	}
}
