package assistant

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapHeaders(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	t.Run("returns mapping from assistant", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

			var req mapRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "cuenta-pyg", req.Schema)
			assert.Equal(t, []string{"Partida", "2023"}, req.Headers)

			json.NewEncoder(w).Encode(mapResponse{
				Mapping: map[string]string{"Partida": "Concepto"},
			})
		}))
		defer srv.Close()

		client := NewClient(srv.URL, "secret", logger)
		mapping, err := client.MapHeaders(context.Background(), "cuenta-pyg", []string{"Partida", "2023"}, nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"Partida": "Concepto"}, mapping)
	})

	t.Run("fails on non-OK status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		client := NewClient(srv.URL, "", logger)
		_, err := client.MapHeaders(context.Background(), "cuenta-pyg", []string{"Partida"}, nil)
		assert.ErrorContains(t, err, "status 502")
	})

	t.Run("fails on assistant error payload", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(mapResponse{Error: "unsupported schema"})
		}))
		defer srv.Close()

		client := NewClient(srv.URL, "", logger)
		_, err := client.MapHeaders(context.Background(), "otros", []string{"X"}, nil)
		assert.ErrorContains(t, err, "unsupported schema")
	})

	t.Run("fails on empty mapping", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(mapResponse{Mapping: map[string]string{}})
		}))
		defer srv.Close()

		client := NewClient(srv.URL, "", logger)
		_, err := client.MapHeaders(context.Background(), "cuenta-pyg", []string{"X"}, nil)
		assert.ErrorContains(t, err, "empty mapping")
	})

	t.Run("not configured", func(t *testing.T) {
		client := NewClient("", "", logger)
		assert.False(t, client.Configured())

		_, err := client.MapHeaders(context.Background(), "cuenta-pyg", []string{"X"}, nil)
		assert.ErrorIs(t, err, ErrNotConfigured)
	})
}
