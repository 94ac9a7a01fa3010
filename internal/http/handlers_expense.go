package http

import (
	"bytes"
	"fmt"
	"net/http"

	"finanzas/internal/core"
	applog "finanzas/internal/log"
	"finanzas/internal/services"
)

type createExpenseRequest struct {
	Name           string           `json:"name"`
	Amount         core.Money       `json:"amount"`
	Type           core.ExpenseType `json:"type"`
	CategoryID     int64            `json:"categoryId"`
	Month          core.Period      `json:"month"`
	Date           core.Date        `json:"date"`
	Paid           *core.Money      `json:"paid"`
	PayWithSavings bool             `json:"payWithSavings"`
}

type updateExpenseRequest struct {
	Name       *string           `json:"name"`
	Amount     *core.Money       `json:"amount"`
	Paid       *core.Money       `json:"paid"`
	CategoryID *int64            `json:"categoryId"`
	Date       *core.Date        `json:"date"`
	Type       *core.ExpenseType `json:"type"`
}

type payExpenseRequest struct {
	Amount *core.Money `json:"amount"`
}

type rolloverRequest struct {
	FromMonth core.Period `json:"fromMonth"`
	ToMonth   core.Period `json:"toMonth"`
}

type exportSheetsRequest struct {
	Month *core.Period `json:"month"`
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r, s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := s.svc.Expenses.List(r.Context(), householdID(r), period)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"month": period, "expenses": nonNil(items)})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	e := core.Expense{
		Name:       sanitizeInput(req.Name),
		Amount:     req.Amount,
		Type:       req.Type,
		CategoryID: req.CategoryID,
		Month:      req.Month,
		Date:       req.Date,
	}
	if req.Paid != nil {
		e.Paid = *req.Paid
	}
	created, err := s.svc.Expenses.Create(r.Context(), householdID(r), e, req.PayWithSavings)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	patch := services.ExpensePatch{
		Name:       sanitizePtr(req.Name),
		Amount:     req.Amount,
		Paid:       req.Paid,
		CategoryID: req.CategoryID,
		Date:       req.Date,
		Type:       req.Type,
	}
	updated, err := s.svc.Expenses.Update(r.Context(), householdID(r), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Expenses.Delete(r.Context(), householdID(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePayExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req payExpenseRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.svc.Expenses.MarkPaid(r.Context(), householdID(r), id, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleUnpayExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.svc.Expenses.MarkUnpaid(r.Context(), householdID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleRollover(w http.ResponseWriter, r *http.Request) {
	var req rolloverRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := s.svc.Expenses.Rollover(r.Context(), householdID(r), req.FromMonth, req.ToMonth)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fromMonth": req.FromMonth, "toMonth": req.ToMonth, "copied": n})
}

// handleExportCSV renders into a buffer first so a failed export never
// sends a truncated file with a 200.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r, s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	hid := householdID(r)
	export, err := s.svc.Expenses.Export(r.Context(), hid, period)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := services.WriteCSV(&buf, export); err != nil {
		writeError(w, r, err)
		return
	}

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Expenses exported",
		applog.FieldOperation, applog.OpExport,
		applog.FieldPeriod, period.String(),
		"rows", len(export.Rows))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="expenses-%d-%s.csv"`, hid, period.String()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleExportSheets(w http.ResponseWriter, r *http.Request) {
	var req exportSheetsRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	var period core.Period
	if req.Month != nil {
		period = *req.Month
	} else {
		p, err := periodParam(r, s.now())
		if err != nil {
			writeError(w, r, err)
			return
		}
		period = p
	}
	refs, err := s.svc.Expenses.ExportToSinks(r.Context(), householdID(r), period)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"month": period, "refs": refs})
}

// nonNil keeps empty lists as [] in JSON.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
