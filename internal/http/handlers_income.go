package http

import (
	"net/http"

	"finanzas/internal/core"
)

type incomeRequest struct {
	Amount      core.Money `json:"amount"`
	Date        core.Date  `json:"date"`
	Category    string     `json:"category"`
	Description string     `json:"description"`
	Type        string     `json:"type"`
}

func (s *Server) handleListIncomes(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r, s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := s.svc.Incomes.List(r.Context(), householdID(r), period)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"month": period, "incomes": nonNil(items)})
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	var req incomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Date.IsZero() {
		req.Date = core.DateOf(s.now())
	}
	in, err := s.svc.Incomes.Create(r.Context(), householdID(r), core.Income{
		Amount:      req.Amount,
		Date:        req.Date,
		Category:    sanitizeInput(req.Category),
		Description: sanitizeInput(req.Description),
		Type:        sanitizeInput(req.Type),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, in)
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Incomes.Delete(r.Context(), householdID(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
