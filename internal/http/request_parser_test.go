package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"finanzas/internal/core"
)

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Amount core.Money `json:"amount"`
		Name   string     `json:"name"`
	}
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{"valid", `{"amount":"12.50","name":"x"}`, nil},
		{"empty", ``, errEmptyBody},
		{"bad amount", `{"amount":"twelve"}`, core.ErrInvalidAmount},
		{"malformed", `{"amount":`, core.ErrInvalidInput},
		{"trailing", `{"name":"a"}{"name":"b"}`, core.ErrInvalidInput},
		{"too large", `{"name":"` + strings.Repeat("a", maxBodyBytes) + `"}`, core.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p payload
			err := decodeJSON(httptest.NewRecorder(), r, &p)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if p.Amount.Cents != 1250 {
					t.Errorf("amount = %d", p.Amount.Cents)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeOptionalJSON(t *testing.T) {
	var dst payExpenseRequest
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	if err := decodeOptionalJSON(httptest.NewRecorder(), r, &dst); err != nil {
		t.Fatalf("empty body: %v", err)
	}
	if dst.Amount != nil {
		t.Error("amount should stay nil")
	}
	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"x"}`))
	if err := decodeOptionalJSON(httptest.NewRecorder(), r, &dst); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("err = %v", err)
	}
}

func TestPeriodParam(t *testing.T) {
	now := time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC)
	tests := []struct {
		query   string
		want    core.Period
		wantErr bool
	}{
		{"", core.Period{Year: 2024, Month: 12}, false},
		{"?month=02-2023", core.Period{Year: 2023, Month: 2}, false},
		{"?month=13-2023", core.Period{}, true},
		{"?month=2023-02", core.Period{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := periodParam(httptest.NewRequest(http.MethodGet, "/"+tt.query, nil), now)
			if tt.wantErr {
				if !errors.Is(err, core.ErrInvalidInput) {
					t.Errorf("err = %v, want invalid input", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("got %v, %v, want %v", got, err, tt.want)
			}
		})
	}
}

func TestDeleteModeParam(t *testing.T) {
	r := httptest.NewRequest(http.MethodDelete, "/", nil)
	if m, _ := deleteModeParam(r, core.HardDelete); m != core.HardDelete {
		t.Errorf("default = %s", m)
	}
	r = httptest.NewRequest(http.MethodDelete, "/?mode=SOFT", nil)
	if m, _ := deleteModeParam(r, core.HardDelete); m != core.SoftDelete {
		t.Errorf("got %s", m)
	}
	r = httptest.NewRequest(http.MethodDelete, "/?mode=wipe", nil)
	if _, err := deleteModeParam(r, core.HardDelete); !errors.Is(err, core.ErrInvalidInput) {
		t.Errorf("err = %v", err)
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := map[string]string{
		"  Renta  ":      "Renta",
		"Lu\x00z\x1b":    "Luz",
		"two\nlines\tok": "two\nlines\tok",
		"":               "",
	}
	for in, want := range tests {
		if got := sanitizeInput(in); got != want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTokens(t *testing.T) {
	now := time.Now()
	tok, err := IssueToken(testSecret, 42, time.Hour, now)
	if err != nil {
		t.Fatal(err)
	}
	uid, err := parseToken(testSecret, tok)
	if err != nil || uid != 42 {
		t.Fatalf("parseToken = %d, %v", uid, err)
	}
	if _, err := parseToken([]byte("other-secret-987654321"), tok); !errors.Is(err, errUnauthenticated) {
		t.Errorf("wrong secret: %v", err)
	}
	bad, _ := IssueToken(testSecret, 0, time.Hour, now)
	if _, err := parseToken(testSecret, bad); !errors.Is(err, errUnauthenticated) {
		t.Errorf("zero subject: %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Basic abc", "", false},
		{"Bearer   ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", tt.header)
		got, ok := bearerToken(r)
		if got != tt.want || ok != tt.ok {
			t.Errorf("bearerToken(%q) = %q, %v", tt.header, got, ok)
		}
	}
}
