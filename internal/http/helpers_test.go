package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"finanzas/internal/cache"
	"finanzas/internal/core"
	applog "finanzas/internal/log"
	"finanzas/internal/services"
	"finanzas/internal/sheets/memory"
	"finanzas/internal/storage"
)

var (
	testNow    = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	testSecret = []byte("test-secret-0123456789")
)

type testAPI struct {
	t       *testing.T
	repo    *storage.SQLiteRepository
	svc     Services
	handler http.Handler
	sink    *memory.Store
}

type apiOption func(*Options)

func newTestAPI(t *testing.T, opts ...apiOption) *testAPI {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	repo.SetClock(func() time.Time { return testNow })

	households := services.NewHouseholdService(repo, cache.NewLRUCache[core.Member](100, time.Minute), nil)
	sink := memory.New()
	svc := Services{
		Savings:       services.NewSavingsService(repo),
		Expenses:      services.NewExpenseService(repo, nil, sink),
		Categories:    services.NewCategoryService(repo),
		Incomes:       services.NewIncomeService(repo),
		Loans:         services.NewLoanService(repo, nil),
		Households:    households,
		Lifecycle:     services.NewLifecycleService(repo, households, nil),
		Notifications: services.NewNotificationService(repo),
	}

	o := Options{
		JWTSecret: testSecret,
		Logger:    applog.New(applog.Config{Output: io.Discard}),
		Now:       func() time.Time { return testNow },
	}
	for _, opt := range opts {
		opt(&o)
	}
	srv := NewServer(":0", svc, o)
	return &testAPI{t: t, repo: repo, svc: svc, handler: srv.Handler, sink: sink}
}

// user registers an account and returns it with a valid token.
func (a *testAPI) user(email string) (core.User, string) {
	a.t.Helper()
	u, err := a.svc.Households.RegisterUser(context.Background(), email, "Test")
	if err != nil {
		a.t.Fatal(err)
	}
	tok, err := IssueToken(testSecret, u.ID, time.Hour, time.Now())
	if err != nil {
		a.t.Fatal(err)
	}
	return u, tok
}

type call struct {
	method    string
	path      string
	body      any
	token     string
	household int64
}

func (a *testAPI) do(c call) *httptest.ResponseRecorder {
	a.t.Helper()
	var body io.Reader
	switch b := c.body.(type) {
	case nil:
	case string:
		body = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			a.t.Fatal(err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.household != 0 {
		req.Header.Set(HeaderHousehold, strconv.FormatInt(c.household, 10))
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

// expect runs the call, checks the status and decodes the body into out.
func (a *testAPI) expect(c call, status int, out any) {
	a.t.Helper()
	rec := a.do(c)
	if rec.Code != status {
		a.t.Fatalf("%s %s: status %d, want %d; body %s", c.method, c.path, rec.Code, status, rec.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			a.t.Fatalf("%s %s: decode %q: %v", c.method, c.path, rec.Body.String(), err)
		}
	}
}

// owner registers a user with a household and one category.
func (a *testAPI) owner(email string) (token string, hid, categoryID int64) {
	a.t.Helper()
	_, token = a.user(email)
	var h core.Household
	a.expect(call{method: http.MethodPost, path: "/households", body: map[string]string{"name": "Casa"}, token: token}, http.StatusCreated, &h)
	var c core.Category
	a.expect(call{method: http.MethodPost, path: "/categories", body: map[string]string{"name": "Hogar", "color": "#00ff00"}, token: token, household: h.ID}, http.StatusCreated, &c)
	return token, h.ID, c.ID
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Code
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
