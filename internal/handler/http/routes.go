// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Init builds the router with every API route registered.
func (h *Handler) Init() *chi.Mux {
	router := chi.NewRouter()

	router.Use(middleware.Recoverer)
	router.Method("GET", "/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		r.Use(h.withTraceID, h.withLogging, withGZip)

		r.Get("/api/version", h.getServerVersion)

		r.Route("/api/changes", func(r chi.Router) {
			r.Get("/", h.listChanges)
			r.Post("/approve", h.bulkApprove)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getChange)
				r.Post("/approve", h.approveChange)
				r.Post("/reject", h.rejectChange)
				r.Post("/resolve", h.resolveChange)
				r.Post("/rollback", h.rollbackChange)
				r.Get("/rollbacks", h.listRollbacks)
			})
		})

		r.Route("/api/batches", func(r chi.Router) {
			r.Post("/", h.startBatch)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getBatch)
				r.Post("/cancel", h.cancelBatch)
				r.Post("/finalize", h.finalizeBatch)
				r.Post("/release", h.releaseBatch)
			})
		})

		r.Route("/api/rules", func(r chi.Router) {
			r.Get("/", h.listRules)
			r.Post("/", h.createRule)
		})

		r.Route("/api/entities/{type}/{key}/history", func(r chi.Router) {
			r.Get("/", h.entityHistory)
			r.Post("/prune", h.pruneHistory)
		})
	})

	return router
}
