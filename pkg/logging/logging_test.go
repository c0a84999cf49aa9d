package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/brinevault/brine/pkg/caserr"
)

func TestWithRealmAnnotatesRecords(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&out, nil))

	WithRealm(logger, "usr_u1").Info("hello")

	var record map[string]any
	if err := json.Unmarshal(out.Bytes(), &record); err != nil {
		t.Fatalf("invalid JSON log record: %v (%s)", err, out.String())
	}
	if record["realm"] != "usr_u1" {
		t.Errorf("expected realm field, got %v", record["realm"])
	}
}

func TestLogErrorLevelsInternalAsError(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))

	LogError(context.Background(), logger, "commit failed", caserr.Internal("boom", nil))
	if !strings.Contains(out.String(), "level=ERROR") {
		t.Errorf("expected ERROR level for internal error, got: %s", out.String())
	}
}

func TestLogErrorLevelsNotFoundAsWarn(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))

	LogError(context.Background(), logger, "lookup failed", caserr.NotFound("no such key"))
	if !strings.Contains(out.String(), "level=WARN") {
		t.Errorf("expected WARN level for not_found error, got: %s", out.String())
	}
	if !strings.Contains(out.String(), "error_kind=not_found") {
		t.Errorf("expected error_kind=not_found, got: %s", out.String())
	}
}

func TestLogErrorLevelsPlainErrorAsError(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))

	LogError(context.Background(), logger, "unexpected", os.ErrClosed)
	if !strings.Contains(out.String(), "level=ERROR") {
		t.Errorf("expected ERROR level for an untyped error, got: %s", out.String())
	}
}

func TestNewDefaultsToStderrAndJSON(t *testing.T) {
	logger := New(Options{})
	if logger == nil {
		t.Fatal("expected a non-nil logger")
	}
}
