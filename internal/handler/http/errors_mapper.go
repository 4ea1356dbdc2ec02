// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/MKhiriev/go-catalog-sync/internal/logger"
	"github.com/MKhiriev/go-catalog-sync/internal/service"
	"github.com/MKhiriev/go-catalog-sync/internal/utils"
	"github.com/MKhiriev/go-catalog-sync/models"
)

// errorStatusMap is checked in order; the first sentinel matched by
// errors.Is decides the status.
var errorStatusMap = []struct {
	target error
	status int
}{
	{service.ErrValidation, http.StatusBadRequest},
	{service.ErrUnknownSource, http.StatusBadRequest},
	{service.ErrChangeNotFound, http.StatusNotFound},
	{service.ErrBatchNotFound, http.StatusNotFound},
	{service.ErrStaleBase, http.StatusConflict},
	{service.ErrInvalidState, http.StatusConflict},
	{service.ErrNoChanges, http.StatusUnprocessableEntity},
	{service.ErrManualResolutionRequired, http.StatusUnprocessableEntity},
}

func statusFromError(err error) int {
	for _, e := range errorStatusMap {
		if errors.Is(err, e.target) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// writeError logs err and answers with an ErrorResponse. Internal errors
// are not echoed to the caller.
func writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	log := logger.FromRequest(r)
	status := statusFromError(err)

	body := models.ErrorResponse{
		Error:   err.Error(),
		TraceID: w.Header().Get(traceIDHeader),
	}
	if status == http.StatusInternalServerError {
		log.Err(err).Msg(msg)
		body.Error = http.StatusText(status)
	} else {
		log.Warn().Err(err).Int("status", status).Msg(msg)
	}

	utils.WriteJSON(w, body, status)
}

// errBadJSON wraps body decoding failures so they map to 400.
func errBadJSON(err error) error {
	return fmt.Errorf("%w: %w", service.ErrValidation, err)
}
