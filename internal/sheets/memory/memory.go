package memory

import (
	"context"
	"fmt"
	"sync"

	"finanzas/internal/core"
	ports "finanzas/internal/sheets"
)

var _ ports.ExportWriter = (*Store)(nil)

// Store keeps exports in memory, keyed by household and period. A later
// export of the same period replaces the earlier one, like a sheet rewrite.
type Store struct {
	mu      sync.Mutex
	exports map[string]core.Export
	writes  int
}

func New() *Store {
	return &Store{exports: make(map[string]core.Export)}
}

func key(householdID int64, p core.Period) string {
	return fmt.Sprintf("%d/%s", householdID, p)
}

func (s *Store) WriteExport(_ context.Context, export core.Export) (string, error) {
	if err := export.Period.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := append([]core.ExportRow(nil), export.Rows...)
	export.Rows = rows
	k := key(export.HouseholdID, export.Period)
	s.exports[k] = export
	s.writes++
	return "mem:" + k, nil
}

// Get returns the last export written for the household and period.
func (s *Store) Get(householdID int64, p core.Period) (core.Export, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.exports[key(householdID, p)]
	return e, ok
}

// Writes counts WriteExport calls.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
