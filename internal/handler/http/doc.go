// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package http implements the REST API of the sync engine.
//
// It exposes review endpoints for staged changes, batch control, approval
// rules, version history and rollback. Request tracing, access logging and
// response compression are handled by middleware before a request reaches
// the service layer.
package http
