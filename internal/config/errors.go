// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package config

import "errors"

// Errors returned while building the configuration. The ErrInvalid* ones
// come from [StructuredConfig.validate].
var (
	// ErrEnvConfigs wraps failures to read or convert environment variables.
	ErrEnvConfigs = errors.New("error getting env configs")
	// ErrInvalidServerConfigs indicates a missing listen address or timeout.
	ErrInvalidServerConfigs = errors.New("invalid server configuration")
	// ErrInvalidAdapterConfigs indicates invalid remote platform settings.
	ErrInvalidAdapterConfigs = errors.New("invalid adapter configuration")
	// ErrInvalidStorageConfigs indicates invalid storage settings.
	ErrInvalidStorageConfigs = errors.New("invalid storage configuration")
	// ErrInvalidWorkerConfigs indicates invalid pool or retry settings
	// (for example, Min greater than Max).
	ErrInvalidWorkerConfigs = errors.New("invalid worker configuration")
	// ErrInvalidRateLimitConfigs indicates a non-positive capacity or rate.
	ErrInvalidRateLimitConfigs = errors.New("invalid rate limit configuration")
	// ErrInvalidBatchingConfigs indicates invalid optimizer settings.
	ErrInvalidBatchingConfigs = errors.New("invalid batching configuration")
	// ErrInvalidConflictConfigs indicates thresholds outside (0, 1].
	ErrInvalidConflictConfigs = errors.New("invalid conflict configuration")
	// ErrInvalidFeedConfigs indicates an unsupported feed charset.
	ErrInvalidFeedConfigs = errors.New("invalid feed configuration")
)
