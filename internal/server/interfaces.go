// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package server

import "context"

// Server runs until ctx is done and then shuts down.
type Server interface {
	RunServer(ctx context.Context) error
}
