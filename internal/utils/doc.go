// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package utils holds small HTTP helpers shared by the REST handlers and
// the remote platform adapter.
package utils
