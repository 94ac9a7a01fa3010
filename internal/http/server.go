// Package http exposes the ledger as a JSON REST API. Every route except
// the probes needs a bearer token; household data routes also need the
// x-household-id header.
package http

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	applog "finanzas/internal/log"
	"finanzas/internal/middleware/ratelimit"
	"finanzas/internal/middleware/security"
	"finanzas/internal/middleware/trace"
	"finanzas/internal/services"
)

// Services is everything the handlers call into.
type Services struct {
	Savings       *services.SavingsService
	Expenses      *services.ExpenseService
	Categories    *services.CategoryService
	Incomes       *services.IncomeService
	Loans         *services.LoanService
	Households    *services.HouseholdService
	Lifecycle     *services.LifecycleService
	Notifications *services.NotificationService
}

type Options struct {
	JWTSecret []byte
	Logger    *applog.Logger
	// Limiter caps unsafe requests; nil disables limiting.
	Limiter *ratelimit.Limiter
	// IPs resolves client addresses; nil uses the direct peer.
	IPs *security.IPResolver
	// Ready backs /readyz; nil always reports ready.
	Ready func(ctx context.Context) error
	// Now is the clock for request defaults such as the current period.
	Now func() time.Time
}

type Server struct {
	http.Server
	svc     Services
	secret  []byte
	limiter *ratelimit.Limiter
	ips     *security.IPResolver
	ready   func(ctx context.Context) error
	now     func() time.Time

	shutdownOnce sync.Once
}

// NewServer wires the routes and returns a ready-to-run server.
func NewServer(addr string, svc Services, opts Options) *Server {
	s := &Server{
		svc:     svc,
		secret:  opts.JWTSecret,
		limiter: opts.Limiter,
		ips:     opts.IPs,
		ready:   opts.Ready,
		now:     opts.Now,
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.FromContext(context.Background())
	}

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(logger.WithComponent(applog.ComponentHTTP)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) clientIP(r *http.Request) string {
	if s.ips != nil {
		return s.ips.ClientIP(r)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) routes(logger *applog.Logger) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	// Authenticated, not household scoped
	api := r.NewRoute().Subrouter()
	api.Use(s.authenticate)
	if s.limiter != nil {
		api.Use(s.limiter.Middleware(s.rateLimitKey, tooManyRequests))
	}

	api.HandleFunc("/me", s.handleMe).Methods(http.MethodGet)
	api.HandleFunc("/me", s.handleDeleteMe).Methods(http.MethodDelete)
	api.HandleFunc("/notifications", s.handleListNotifications).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{id:[0-9]+}/read", s.handleReadNotification).Methods(http.MethodPost)

	api.HandleFunc("/households", s.handleListHouseholds).Methods(http.MethodGet)
	api.HandleFunc("/households", s.handleCreateHousehold).Methods(http.MethodPost)
	api.HandleFunc("/households/join", s.handleJoinHousehold).Methods(http.MethodPost)
	api.HandleFunc("/households/{id:[0-9]+}", s.handleGetHousehold).Methods(http.MethodGet)
	api.HandleFunc("/households/{id:[0-9]+}", s.handleUpdateHousehold).Methods(http.MethodPut)
	api.HandleFunc("/households/{id:[0-9]+}", s.handleDeleteHousehold).Methods(http.MethodDelete)
	api.HandleFunc("/households/{id:[0-9]+}/invite", s.handleRegenerateInvite).Methods(http.MethodPost)
	api.HandleFunc("/households/{id:[0-9]+}/default", s.handleSetDefault).Methods(http.MethodPost)
	api.HandleFunc("/households/{id:[0-9]+}/leave", s.handleLeaveHousehold).Methods(http.MethodPost)
	api.HandleFunc("/households/{id:[0-9]+}/members", s.handleListMembers).Methods(http.MethodGet)
	api.HandleFunc("/households/{id:[0-9]+}/members/{userId:[0-9]+}/promote", s.handlePromote).Methods(http.MethodPost)
	api.HandleFunc("/households/{id:[0-9]+}/members/{userId:[0-9]+}/demote", s.handleDemote).Methods(http.MethodPost)
	api.HandleFunc("/households/{id:[0-9]+}/members/{userId:[0-9]+}", s.handleRemoveMember).Methods(http.MethodDelete)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(s.requireAdmin)
	admin.HandleFunc("/users/bulk-delete", s.handleAdminBulkDelete).Methods(http.MethodPost)
	admin.HandleFunc("/users/{id:[0-9]+}", s.handleAdminDelete).Methods(http.MethodDelete)
	admin.HandleFunc("/users/{id:[0-9]+}/restore", s.handleAdminRestore).Methods(http.MethodPost)

	// Household scoped ledger routes
	scoped := api.NewRoute().Subrouter()
	scoped.Use(s.requireHousehold)

	scoped.HandleFunc("/savings", s.handleGetSavings).Methods(http.MethodGet)
	scoped.HandleFunc("/savings", s.handleApplySavings).Methods(http.MethodPost)

	scoped.HandleFunc("/categories", s.handleListCategories).Methods(http.MethodGet)
	scoped.HandleFunc("/categories", s.handleCreateCategory).Methods(http.MethodPost)
	scoped.HandleFunc("/categories/{id:[0-9]+}", s.handleUpdateCategory).Methods(http.MethodPut)
	scoped.HandleFunc("/categories/{id:[0-9]+}", s.handleDeleteCategory).Methods(http.MethodDelete)
	scoped.HandleFunc("/categories/{id:[0-9]+}/pay", s.handlePayCategory).Methods(http.MethodPost)

	scoped.HandleFunc("/incomes", s.handleListIncomes).Methods(http.MethodGet)
	scoped.HandleFunc("/incomes", s.handleCreateIncome).Methods(http.MethodPost)
	scoped.HandleFunc("/incomes/{id:[0-9]+}", s.handleDeleteIncome).Methods(http.MethodDelete)

	scoped.HandleFunc("/expenses", s.handleListExpenses).Methods(http.MethodGet)
	scoped.HandleFunc("/expenses", s.handleCreateExpense).Methods(http.MethodPost)
	scoped.HandleFunc("/expenses/rollover", s.handleRollover).Methods(http.MethodPost)
	scoped.HandleFunc("/expenses/export", s.handleExportCSV).Methods(http.MethodGet)
	scoped.HandleFunc("/expenses/export/sheets", s.handleExportSheets).Methods(http.MethodPost)
	scoped.HandleFunc("/expenses/{id:[0-9]+}", s.handleUpdateExpense).Methods(http.MethodPut)
	scoped.HandleFunc("/expenses/{id:[0-9]+}", s.handleDeleteExpense).Methods(http.MethodDelete)
	scoped.HandleFunc("/expenses/{id:[0-9]+}/pay", s.handlePayExpense).Methods(http.MethodPost)
	scoped.HandleFunc("/expenses/{id:[0-9]+}/unpay", s.handleUnpayExpense).Methods(http.MethodPost)

	scoped.HandleFunc("/loans", s.handleListLoans).Methods(http.MethodGet)
	scoped.HandleFunc("/loans", s.handleCreateLoan).Methods(http.MethodPost)
	scoped.HandleFunc("/loans/{id:[0-9]+}", s.handleGetLoan).Methods(http.MethodGet)
	scoped.HandleFunc("/loans/{id:[0-9]+}", s.handleUpdateLoan).Methods(http.MethodPut)
	scoped.HandleFunc("/loans/{id:[0-9]+}", s.handleDeleteLoan).Methods(http.MethodDelete)
	scoped.HandleFunc("/loans/{id:[0-9]+}/paid", s.handleMarkLoanPaid).Methods(http.MethodPost)
	scoped.HandleFunc("/loans/{id:[0-9]+}/forgive", s.handleForgiveLoan).Methods(http.MethodPost)
	scoped.HandleFunc("/loans/{id:[0-9]+}/payments", s.handleAddPayment).Methods(http.MethodPost)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(logger, s.clientIP)
	return tracer.Middleware(headers.Middleware(r))
}

// Shutdown stops the limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			applog.FromContext(ctx).WarnContext(ctx, "Readiness check failed", applog.FieldError, err)
			writeStatus(w, r, http.StatusServiceUnavailable, "not_ready", "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
