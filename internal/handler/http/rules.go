// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package http

import (
	"encoding/json"
	"net/http"

	"github.com/MKhiriev/go-catalog-sync/internal/utils"
	"github.com/MKhiriev/go-catalog-sync/models"
)

func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.services.ApprovalEngine.ListRules(r.Context())
	if err != nil {
		writeError(w, r, err, "listing approval rules failed")
		return
	}
	if rules == nil {
		rules = []models.ApprovalRule{}
	}

	utils.WriteJSON(w, rules, http.StatusOK)
}

func (h *Handler) createRule(w http.ResponseWriter, r *http.Request) {
	var rule models.ApprovalRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, r, errBadJSON(err), "invalid JSON was passed")
		return
	}

	created, err := h.services.ApprovalEngine.CreateRule(r.Context(), rule)
	if err != nil {
		writeError(w, r, err, "creating approval rule failed")
		return
	}

	utils.WriteJSON(w, created, http.StatusCreated)
}
