package http

import (
	"fmt"
	"net/http"
	"strings"

	"finanzas/internal/core"
)

type savingsRequest struct {
	Amount    rawText        `json:"amount"`
	Operation core.SavingsOp `json:"operation"`
}

func (s *Server) handleGetSavings(w http.ResponseWriter, r *http.Request) {
	ov, err := s.svc.Savings.Overview(r.Context(), householdID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (s *Server) handleApplySavings(w http.ResponseWriter, r *http.Request) {
	var req savingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	op := core.SavingsOp(strings.ToLower(strings.TrimSpace(string(req.Operation))))
	if !op.Valid() {
		writeError(w, r, fmt.Errorf("%w: operation must be add, subtract or set", core.ErrInvalidInput))
		return
	}
	sv, err := s.svc.Savings.Apply(r.Context(), householdID(r), string(req.Amount), op)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sv)
}
