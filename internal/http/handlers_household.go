package http

import (
	"context"
	"net/http"

	"finanzas/internal/core"
)

type createHouseholdRequest struct {
	Name string `json:"name"`
}

type joinHouseholdRequest struct {
	InviteCode string `json:"inviteCode"`
}

type updateHouseholdRequest struct {
	Name        *string           `json:"name"`
	SavingsGoal *core.SavingsGoal `json:"savingsGoal"`
}

func (s *Server) handleListHouseholds(w http.ResponseWriter, r *http.Request) {
	items, err := s.svc.Households.List(r.Context(), currentUser(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

func (s *Server) handleCreateHousehold(w http.ResponseWriter, r *http.Request) {
	var req createHouseholdRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h, err := s.svc.Households.Create(r.Context(), currentUser(r.Context()).ID, sanitizeInput(req.Name))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h)
}

func (s *Server) handleJoinHousehold(w http.ResponseWriter, r *http.Request) {
	var req joinHouseholdRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h, err := s.svc.Households.Join(r.Context(), currentUser(r.Context()).ID, sanitizeInput(req.InviteCode))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleGetHousehold(w http.ResponseWriter, r *http.Request) {
	hid, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	h, err := s.svc.Households.Get(r.Context(), currentUser(r.Context()).ID, hid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

// handleUpdateHousehold renames and/or sets the savings goal. Both need a
// manager role.
func (s *Server) handleUpdateHousehold(w http.ResponseWriter, r *http.Request) {
	hid, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateHouseholdRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx := r.Context()
	actor := currentUser(ctx).ID
	if req.Name != nil {
		if err := s.svc.Households.Rename(ctx, actor, hid, sanitizeInput(*req.Name)); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if req.SavingsGoal != nil {
		if err := s.svc.Households.UpdateSavingsGoal(ctx, actor, hid, *req.SavingsGoal); err != nil {
			writeError(w, r, err)
			return
		}
	}
	h, err := s.svc.Households.Get(ctx, actor, hid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleDeleteHousehold(w http.ResponseWriter, r *http.Request) {
	hid, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	mode, err := deleteModeParam(r, core.HardDelete)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Households.Delete(r.Context(), currentUser(r.Context()).ID, hid, mode); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRegenerateInvite(w http.ResponseWriter, r *http.Request) {
	hid, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	code, err := s.svc.Households.RegenerateInvite(r.Context(), currentUser(r.Context()).ID, hid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"inviteCode": code})
}

func (s *Server) handleSetDefault(w http.ResponseWriter, r *http.Request) {
	hid, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Households.SetDefault(r.Context(), currentUser(r.Context()).ID, hid); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLeaveHousehold(w http.ResponseWriter, r *http.Request) {
	hid, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Households.Leave(r.Context(), currentUser(r.Context()).ID, hid); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	hid, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	members, err := s.svc.Households.Members(r.Context(), currentUser(r.Context()).ID, hid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(members))
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	s.memberAction(w, r, s.svc.Households.Promote)
}

func (s *Server) handleDemote(w http.ResponseWriter, r *http.Request) {
	s.memberAction(w, r, s.svc.Households.Demote)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	s.memberAction(w, r, s.svc.Households.RemoveMember)
}

type memberFunc func(ctx context.Context, actorID, householdID, targetID int64) error

func (s *Server) memberAction(w http.ResponseWriter, r *http.Request, act memberFunc) {
	hid, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	target, err := pathID(r, "userId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := act(r.Context(), currentUser(r.Context()).ID, hid, target); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
