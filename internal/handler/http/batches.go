// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package http

import (
	"encoding/json"
	"net/http"

	"github.com/MKhiriev/go-catalog-sync/internal/logger"
	"github.com/MKhiriev/go-catalog-sync/internal/utils"
	"github.com/MKhiriev/go-catalog-sync/models"
	"github.com/go-chi/chi/v5"
)

type batchStarted struct {
	BatchID string `json:"batch_id"`
}

type batchReleased struct {
	BatchID  string `json:"batch_id"`
	Enqueued int    `json:"enqueued"`
}

func (h *Handler) startBatch(w http.ResponseWriter, r *http.Request) {
	var req models.StartSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errBadJSON(err), "invalid JSON was passed")
		return
	}

	id, err := h.services.BatchService.Start(r.Context(), req)
	if err != nil {
		writeError(w, r, err, "starting sync batch failed")
		return
	}

	logger.FromRequest(r).Info().
		Str("batch_id", id).
		Str("direction", string(req.Direction)).
		Msg("sync batch started")
	w.Header().Set("Location", "/api/batches/"+id)
	utils.WriteJSON(w, batchStarted{BatchID: id}, http.StatusAccepted)
}

func (h *Handler) getBatch(w http.ResponseWriter, r *http.Request) {
	status, err := h.services.BatchService.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, "getting batch status failed")
		return
	}

	utils.WriteJSON(w, status, http.StatusOK)
}

func (h *Handler) cancelBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := h.services.BatchService.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, "cancelling batch failed")
		return
	}

	utils.WriteJSON(w, batch, http.StatusOK)
}

func (h *Handler) finalizeBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := h.services.BatchService.Finalize(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, "finalizing batch failed")
		return
	}

	utils.WriteJSON(w, batch, http.StatusOK)
}

func (h *Handler) releaseBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	n, err := h.services.BatchService.Release(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "releasing batch failed")
		return
	}

	utils.WriteJSON(w, batchReleased{BatchID: id, Enqueued: n}, http.StatusOK)
}
