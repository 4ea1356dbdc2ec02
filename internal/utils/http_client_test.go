// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPClient_Headers(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		want      string
	}{
		{name: "custom agent", userAgent: "catalog-sync/1.2", want: "catalog-sync/1.2"},
		{name: "default agent", userAgent: "", want: defaultUserAgent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got http.Header
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Clone()
				w.WriteHeader(http.StatusNoContent)
			}))
			defer srv.Close()

			resp, err := NewHTTPClient(tt.userAgent).R().SetBody(map[string]int{"a": 1}).Post(srv.URL)
			require.NoError(t, err)

			assert.Equal(t, http.StatusNoContent, resp.StatusCode())
			assert.Equal(t, tt.want, got.Get("User-Agent"))
			assert.Equal(t, "application/json", got.Get("Content-Type"))
		})
	}
}

func TestNewHTTPClient_DoesNotRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	resp, err := NewHTTPClient("").R().Get(srv.URL)
	require.NoError(t, err)

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode())
	assert.Equal(t, 1, calls)
}
