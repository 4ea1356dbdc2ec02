// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package utils

import (
	"github.com/go-resty/resty/v2"
)

const defaultUserAgent = "go-catalog-sync"

// HTTPClient is the resty client used against the remote platform. resty's
// own retries stay disabled: retrying belongs to the worker retry policy,
// which also honours the rate limiter.
type HTTPClient struct {
	*resty.Client
}

// NewHTTPClient returns a JSON client identifying itself with userAgent,
// or with a default agent when userAgent is empty.
func NewHTTPClient(userAgent string) *HTTPClient {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	client := resty.New().
		SetRetryCount(0).
		SetHeader("User-Agent", userAgent).
		SetHeader("Content-Type", "application/json")
	return &HTTPClient{Client: client}
}
