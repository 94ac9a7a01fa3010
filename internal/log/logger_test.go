package log

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Component: ComponentApp, Output: &buf})
	l.WithComponent(ComponentSavings).Info("balance changed", FieldHouseholdID, 3)

	out := buf.String()
	if !strings.Contains(out, "component=savings") || !strings.Contains(out, "household_id=3") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()).Component() != "unknown" {
		t.Fatal("expected fallback logger")
	}
	l := New(DefaultConfig())
	if FromContext(NewContext(context.Background(), l)) != l {
		t.Fatal("logger not stored in context")
	}
}

func TestLogHTTPEndLevels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{200, "level=INFO"},
		{404, "level=WARN"},
		{503, "level=ERROR"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		l := New(Config{Level: slog.LevelDebug, Output: &buf})
		r := httptest.NewRequest(http.MethodGet, "/expenses?month=03-2024", nil)
		LogHTTPEnd(NewContext(context.Background(), l), r, tt.status, 12, "10.0.0.1")

		out := buf.String()
		for _, want := range []string{tt.level, "status_code=" + strconv.Itoa(tt.status), "client_ip=10.0.0.1", "path=/expenses"} {
			if !strings.Contains(out, want) {
				t.Errorf("status %d: %q missing %q", tt.status, out, want)
			}
		}
	}
}

func TestFieldsWithHousehold(t *testing.T) {
	f := NewFields().WithHousehold(7, 0).WithError(nil)
	if f[FieldHouseholdID] != int64(7) {
		t.Errorf("household = %v", f[FieldHouseholdID])
	}
	if _, ok := f[FieldUserID]; ok {
		t.Error("zero user id should be omitted")
	}
	if _, ok := f[FieldError]; ok {
		t.Error("nil error should be omitted")
	}
	if len(NewFields().WithHousehold(1, 2).ToSlice()) != 4 {
		t.Error("expected two key/value pairs")
	}
}
