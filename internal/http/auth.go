package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"finanzas/internal/core"
	applog "finanzas/internal/log"
)

type ctxKey string

const (
	userKey   ctxKey = "user"
	memberKey ctxKey = "member"

	// HeaderHousehold selects the household a scoped request acts on.
	HeaderHousehold = "x-household-id"
)

var errUnauthenticated = errors.New("unauthenticated")

// IssueToken signs an HS256 bearer token whose subject is the user id. The
// external auth collaborator mints these; tests and tooling use it too.
func IssueToken(secret []byte, userID int64, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func parseToken(secret []byte, raw string) (int64, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errUnauthenticated, err)
	}
	if !token.Valid {
		return 0, errUnauthenticated
	}
	uid, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || uid <= 0 {
		return 0, fmt.Errorf("%w: bad subject", errUnauthenticated)
	}
	return uid, nil
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(h[7:])
	return tok, tok != ""
}

// authenticate verifies the bearer token and loads the caller. Tokens of
// missing or soft deleted users are rejected.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			writeStatus(w, r, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
			return
		}
		uid, err := parseToken(s.secret, raw)
		if err != nil {
			applog.FromContext(r.Context()).DebugContext(r.Context(), "Rejected token", applog.FieldError, err)
			writeStatus(w, r, http.StatusUnauthorized, "unauthenticated", "invalid token")
			return
		}
		user, err := s.svc.Households.ActiveUser(r.Context(), uid)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				writeStatus(w, r, http.StatusUnauthorized, "unauthenticated", "account not found")
				return
			}
			writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		ctx = applog.NewContext(ctx, applog.FromContext(ctx).With(applog.FieldUserID, user.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireHousehold resolves the x-household-id header against the caller's
// memberships: missing or malformed is 400, not a member is 403.
func (s *Server) requireHousehold(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(HeaderHousehold))
		if raw == "" {
			writeStatus(w, r, http.StatusBadRequest, "missing_household", "x-household-id header is required")
			return
		}
		hid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || hid <= 0 {
			writeStatus(w, r, http.StatusBadRequest, "invalid_household", "x-household-id must be a positive integer")
			return
		}
		user := currentUser(r.Context())
		m, err := s.svc.Households.Resolve(r.Context(), user.ID, hid)
		if err != nil {
			writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), memberKey, m)
		ctx = applog.NewContext(ctx, applog.FromContext(ctx).With(applog.FieldHouseholdID, hid))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !currentUser(r.Context()).Role.IsAdmin() {
			writeStatus(w, r, http.StatusForbidden, "forbidden", "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func currentUser(ctx context.Context) core.User {
	u, _ := ctx.Value(userKey).(core.User)
	return u
}

func currentMember(ctx context.Context) core.Member {
	m, _ := ctx.Value(memberKey).(core.Member)
	return m
}

// householdID is the resolved household of a scoped request.
func householdID(r *http.Request) int64 {
	return currentMember(r.Context()).HouseholdID
}

// rateLimitKey buckets authenticated callers by user and everyone else by
// client address.
func (s *Server) rateLimitKey(r *http.Request) string {
	if u := currentUser(r.Context()); u.ID != 0 {
		return "user:" + strconv.FormatInt(u.ID, 10)
	}
	return "ip:" + s.clientIP(r)
}
