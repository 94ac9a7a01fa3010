package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"finanzas/internal/core"
	"finanzas/internal/services"
)

type createLoanRequest struct {
	PersonName       string                `json:"personName"`
	Amount           core.Money            `json:"amount"`
	Type             core.LoanType         `json:"type"`
	Date             core.Date             `json:"date"`
	DueDate          *core.Date            `json:"dueDate"`
	Installments     int                   `json:"installments"`
	InterestRate     float64               `json:"interestRate"`
	InterestType     core.InterestType     `json:"interestType"`
	PaymentFrequency core.PaymentFrequency `json:"paymentFrequency"`
}

// updateLoanRequest keeps dueDate raw: absent leaves it, null clears it.
type updateLoanRequest struct {
	PersonName       *string                `json:"personName"`
	Amount           *core.Money            `json:"amount"`
	Type             *core.LoanType         `json:"type"`
	Date             *core.Date             `json:"date"`
	DueDate          json.RawMessage        `json:"dueDate"`
	Installments     *int                   `json:"installments"`
	InterestRate     *float64               `json:"interestRate"`
	InterestType     *core.InterestType     `json:"interestType"`
	PaymentFrequency *core.PaymentFrequency `json:"paymentFrequency"`
	RemainingBalance *core.Money            `json:"remainingBalance"`
}

func (req updateLoanRequest) patch() (services.LoanPatch, error) {
	p := services.LoanPatch{
		Type:             req.Type,
		PersonName:       sanitizePtr(req.PersonName),
		Amount:           req.Amount,
		Date:             req.Date,
		Installments:     req.Installments,
		InterestRate:     req.InterestRate,
		InterestType:     req.InterestType,
		PaymentFrequency: req.PaymentFrequency,
		RemainingBalance: req.RemainingBalance,
	}
	switch string(req.DueDate) {
	case "":
	case "null":
		p.ClearDueDate = true
	default:
		var due core.Date
		if err := json.Unmarshal(req.DueDate, &due); err != nil {
			return services.LoanPatch{}, fmt.Errorf("%w: dueDate: %v", core.ErrInvalidInput, err)
		}
		if due.IsZero() {
			p.ClearDueDate = true
		} else {
			p.DueDate = &due
		}
	}
	return p, nil
}

type paymentRequest struct {
	Amount      core.Money           `json:"amount"`
	Date        core.Date            `json:"date"`
	Notes       string               `json:"notes"`
	Destination services.PaymentHint `json:"destination"`
	Source      services.PaymentHint `json:"source"`
	CategoryID  int64                `json:"categoryId"`
}

func (s *Server) handleListLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := s.svc.Loans.List(r.Context(), householdID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(loans))
}

func (s *Server) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.svc.Loans.Create(r.Context(), householdID(r), core.Loan{
		PersonName:       sanitizeInput(req.PersonName),
		Amount:           req.Amount,
		Type:             req.Type,
		Date:             req.Date,
		DueDate:          req.DueDate,
		Installments:     req.Installments,
		InterestRate:     req.InterestRate,
		InterestType:     req.InterestType,
		PaymentFrequency: req.PaymentFrequency,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.svc.Loans.Get(r.Context(), householdID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleUpdateLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateLoanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	patch, err := req.patch()
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.svc.Loans.Update(r.Context(), householdID(r), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleDeleteLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Loans.Delete(r.Context(), householdID(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkLoanPaid(w http.ResponseWriter, r *http.Request) {
	s.loanTransition(w, r, s.svc.Loans.MarkPaid)
}

func (s *Server) handleForgiveLoan(w http.ResponseWriter, r *http.Request) {
	s.loanTransition(w, r, s.svc.Loans.Forgive)
}

func (s *Server) loanTransition(w http.ResponseWriter, r *http.Request, move func(ctx context.Context, householdID, id int64) (services.LoanView, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := move(r.Context(), householdID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleAddPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req paymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.svc.Loans.AddPayment(r.Context(), householdID(r), id, services.PaymentRequest{
		Amount:      req.Amount,
		Date:        req.Date,
		Notes:       sanitizeInput(req.Notes),
		Destination: req.Destination,
		Source:      req.Source,
		CategoryID:  req.CategoryID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
