// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package http

import (
	"fmt"
	"net/http"

	"github.com/MKhiriev/go-catalog-sync/internal/utils"
	"github.com/MKhiriev/go-catalog-sync/models"
	"github.com/go-chi/chi/v5"
)

type pruneResult struct {
	Removed int `json:"removed"`
}

// entityRef reads the {type}/{key} path parameters.
func entityRef(r *http.Request) (models.EntityRef, error) {
	ref := models.EntityRef{
		Type: models.EntityType(chi.URLParam(r, "type")),
		Key:  chi.URLParam(r, "key"),
	}
	if !ref.Type.Valid() {
		return ref, errBadJSON(fmt.Errorf("unknown entity type %q", ref.Type))
	}
	return ref, nil
}

func (h *Handler) entityHistory(w http.ResponseWriter, r *http.Request) {
	ref, err := entityRef(r)
	if err != nil {
		writeError(w, r, err, "invalid entity reference")
		return
	}
	limit, err := intParam(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, r, errBadJSON(err), "invalid limit")
		return
	}

	records, err := h.services.HistoryService.History(r.Context(), ref, limit)
	if err != nil {
		writeError(w, r, err, "reading version history failed")
		return
	}
	if records == nil {
		records = []models.VersionRecord{}
	}

	utils.WriteJSON(w, records, http.StatusOK)
}

func (h *Handler) pruneHistory(w http.ResponseWriter, r *http.Request) {
	ref, err := entityRef(r)
	if err != nil {
		writeError(w, r, err, "invalid entity reference")
		return
	}
	keep, err := intParam(r.URL.Query().Get("keep"))
	if err != nil {
		writeError(w, r, errBadJSON(err), "invalid keep")
		return
	}

	removed, err := h.services.HistoryService.Prune(r.Context(), ref, keep)
	if err != nil {
		writeError(w, r, err, "pruning version history failed")
		return
	}

	utils.WriteJSON(w, pruneResult{Removed: removed}, http.StatusOK)
}
