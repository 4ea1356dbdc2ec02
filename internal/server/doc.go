// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package server runs the HTTP and gRPC servers of the sync engine and
// shuts them down gracefully when the run context ends.
package server
