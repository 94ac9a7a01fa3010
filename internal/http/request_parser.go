package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"finanzas/internal/core"
)

const maxBodyBytes = 1 << 20

var errEmptyBody = fmt.Errorf("%w: request body is empty", core.ErrInvalidInput)

// decodeJSON reads one JSON object into dst. Amount errors keep their
// sentinel; anything else malformed is invalid input.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		switch {
		case errors.Is(err, core.ErrInvalidAmount), errors.Is(err, core.ErrInvalidInput):
			return err
		case errors.Is(err, io.EOF):
			return errEmptyBody
		}
		return fmt.Errorf("%w: malformed JSON body: %v", core.ErrInvalidInput, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: request body has trailing data", core.ErrInvalidInput)
	}
	return nil
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := decodeJSON(w, r, dst); err != nil && !errors.Is(err, errEmptyBody) {
		return err
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s %q", core.ErrInvalidInput, name, raw)
	}
	return id, nil
}

// periodParam reads ?month=MM-YYYY, defaulting to the period containing now.
func periodParam(r *http.Request, now time.Time) (core.Period, error) {
	v := strings.TrimSpace(r.URL.Query().Get("month"))
	if v == "" {
		return core.PeriodOf(core.DateOf(now)), nil
	}
	return core.ParsePeriod(v)
}

// deleteModeParam reads ?mode=soft|hard, defaulting to def.
func deleteModeParam(r *http.Request, def core.DeleteMode) (core.DeleteMode, error) {
	v := core.DeleteMode(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("mode"))))
	if v == "" {
		return def, nil
	}
	if !v.Valid() {
		return "", fmt.Errorf("%w: delete mode %q", core.ErrInvalidInput, v)
	}
	return v, nil
}

func intParam(r *http.Request, name string, def int) int {
	if v := strings.TrimSpace(r.URL.Query().Get(name)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// rawText accepts a JSON string or number and keeps its literal text, so
// amounts reach the money parser exactly as the client sent them.
type rawText string

func (t *rawText) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = rawText(s)
		return nil
	}
	if string(b) == "null" {
		*t = ""
		return nil
	}
	*t = rawText(b)
	return nil
}

// sanitizeInput trims and drops control characters except tab and newlines.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func sanitizePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := sanitizeInput(*s)
	return &v
}
