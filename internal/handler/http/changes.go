// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/MKhiriev/go-catalog-sync/internal/logger"
	"github.com/MKhiriev/go-catalog-sync/internal/utils"
	"github.com/MKhiriev/go-catalog-sync/models"
	"github.com/go-chi/chi/v5"
)

// changeList is the body of GET /api/changes.
type changeList struct {
	Changes []models.StagedChange `json:"changes"`
	Total   int                   `json:"total"`
}

func (h *Handler) listChanges(w http.ResponseWriter, r *http.Request) {
	q, err := parseChangeQuery(r)
	if err != nil {
		writeError(w, r, err, "invalid change query")
		return
	}

	changes, total, err := h.services.StagingService.Query(r.Context(), q)
	if err != nil {
		writeError(w, r, err, "querying staged changes failed")
		return
	}
	if changes == nil {
		changes = []models.StagedChange{}
	}

	utils.WriteJSON(w, changeList{Changes: changes, Total: total}, http.StatusOK)
}

func (h *Handler) getChange(w http.ResponseWriter, r *http.Request) {
	change, err := h.services.StagingService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, "getting staged change failed")
		return
	}

	utils.WriteJSON(w, change, http.StatusOK)
}

func (h *Handler) approveChange(w http.ResponseWriter, r *http.Request) {
	var req models.ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errBadJSON(err), "invalid JSON was passed")
		return
	}

	change, err := h.services.StagingService.Approve(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err, "approving staged change failed")
		return
	}

	logger.FromRequest(r).Info().
		Str("change_id", change.ID).
		Str("reviewer", req.Reviewer).
		Msg("change approved")
	utils.WriteJSON(w, change, http.StatusOK)
}

func (h *Handler) rejectChange(w http.ResponseWriter, r *http.Request) {
	var req models.ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errBadJSON(err), "invalid JSON was passed")
		return
	}

	change, err := h.services.StagingService.Reject(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err, "rejecting staged change failed")
		return
	}

	utils.WriteJSON(w, change, http.StatusOK)
}

func (h *Handler) bulkApprove(w http.ResponseWriter, r *http.Request) {
	var req models.BulkApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errBadJSON(err), "invalid JSON was passed")
		return
	}

	result, err := h.services.StagingService.BulkApprove(r.Context(), req)
	if err != nil {
		writeError(w, r, err, "bulk approval failed")
		return
	}

	utils.WriteJSON(w, result, http.StatusOK)
}

func (h *Handler) resolveChange(w http.ResponseWriter, r *http.Request) {
	var req models.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errBadJSON(err), "invalid JSON was passed")
		return
	}

	change, err := h.services.StagingService.ResolveConflicts(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err, "resolving conflicts failed")
		return
	}

	utils.WriteJSON(w, change, http.StatusOK)
}

func (h *Handler) rollbackChange(w http.ResponseWriter, r *http.Request) {
	var req models.RollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errBadJSON(err), "invalid JSON was passed")
		return
	}

	record, err := h.services.RollbackService.Rollback(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err, "rollback failed")
		return
	}

	utils.WriteJSON(w, record, http.StatusCreated)
}

func (h *Handler) listRollbacks(w http.ResponseWriter, r *http.Request) {
	records, err := h.services.RollbackService.ListRollbacks(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, "listing rollbacks failed")
		return
	}
	if records == nil {
		records = []models.RollbackRecord{}
	}

	utils.WriteJSON(w, records, http.StatusOK)
}

func parseChangeQuery(r *http.Request) (models.ChangeQuery, error) {
	values := r.URL.Query()
	q := models.ChangeQuery{BatchID: values.Get("batch_id")}

	if s := values.Get("status"); s != "" {
		status := models.ChangeStatus(s)
		q.Status = &status
	}
	if s := values.Get("entity_type"); s != "" {
		entityType := models.EntityType(s)
		if !entityType.Valid() {
			return q, errBadJSON(fmt.Errorf("unknown entity type %q", s))
		}
		q.EntityType = &entityType
	}
	if s := values.Get("has_conflicts"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return q, errBadJSON(fmt.Errorf("has_conflicts: %w", err))
		}
		q.HasConflicts = &b
	}

	var err error
	if q.Limit, err = intParam(values.Get("limit")); err != nil {
		return q, errBadJSON(fmt.Errorf("limit: %w", err))
	}
	if q.Offset, err = intParam(values.Get("offset")); err != nil {
		return q, errBadJSON(fmt.Errorf("offset: %w", err))
	}

	return q, nil
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %d", n)
	}
	return n, nil
}
