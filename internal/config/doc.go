// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package config loads, merges and validates the service configuration.
//
// Sources, in priority order:
//  1. .env file and environment variables
//  2. command-line flags
//  3. JSON config file
//  4. built-in defaults
//
// The entry point is [GetStructuredConfig].
package config
