// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package broker publishes sync events to a RabbitMQ topic exchange.
//
// Events are routed by type and entity type, for example
// "change.applied.product" or "batch.closed". Publishing waits for the
// broker confirm so a returned nil means the event was persisted.
package broker
