package http

import (
	"fmt"
	"net/http"

	"finanzas/internal/core"
	"finanzas/internal/services"
)

const maxBulkDelete = 100

type bulkDeleteRequest struct {
	UserIDs []int64         `json:"userIds"`
	Mode    core.DeleteMode `json:"mode"`
}

type bulkDeleteItem struct {
	services.BulkDeleteResult
	Status int `json:"status"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	out := map[string]any{"user": user}
	if m, err := s.svc.Households.DefaultHousehold(r.Context(), user.ID); err == nil {
		out["defaultHouseholdId"] = m.HouseholdID
	}
	writeJSON(w, http.StatusOK, out)
}

// handleDeleteMe deletes the caller's own account, soft unless ?mode=hard.
func (s *Server) handleDeleteMe(w http.ResponseWriter, r *http.Request) {
	mode, err := deleteModeParam(r, core.SoftDelete)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.svc.Lifecycle.SelfDelete(r.Context(), currentUser(r.Context()).ID, mode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	items, err := s.svc.Notifications.List(r.Context(), currentUser(r.Context()).ID, intParam(r, "limit", 0))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

func (s *Server) handleReadNotification(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Notifications.MarkRead(r.Context(), currentUser(r.Context()).ID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminDelete(w http.ResponseWriter, r *http.Request) {
	target, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	mode, err := deleteModeParam(r, core.SoftDelete)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.svc.Lifecycle.AdminDelete(r.Context(), currentUser(r.Context()).ID, target, mode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleAdminBulkDelete always answers 200 once the request is valid; each
// item carries its own status.
func (s *Server) handleAdminBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Mode == "" {
		req.Mode = core.SoftDelete
	}
	if !req.Mode.Valid() {
		writeError(w, r, fmt.Errorf("%w: delete mode %q", core.ErrInvalidInput, req.Mode))
		return
	}
	if len(req.UserIDs) == 0 || len(req.UserIDs) > maxBulkDelete {
		writeError(w, r, fmt.Errorf("%w: userIds must hold between 1 and %d ids", core.ErrInvalidInput, maxBulkDelete))
		return
	}

	results := s.svc.Lifecycle.AdminBulkDelete(r.Context(), currentUser(r.Context()).ID, req.UserIDs, req.Mode)
	items := make([]bulkDeleteItem, 0, len(results))
	for _, res := range results {
		status := http.StatusOK
		if res.Err != nil {
			status, _ = statusFor(res.Err)
			if status == http.StatusInternalServerError {
				res.Error = "internal error"
			}
		}
		items = append(items, bulkDeleteItem{BulkDeleteResult: res, Status: status})
	}
	writeJSON(w, http.StatusOK, map[string]any{"mode": req.Mode, "results": items})
}

func (s *Server) handleAdminRestore(w http.ResponseWriter, r *http.Request) {
	target, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Lifecycle.Restore(r.Context(), currentUser(r.Context()).ID, target); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
