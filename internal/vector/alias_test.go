package vector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAliasClient(t *testing.T) {
	t.Run("Target returns the aliased collection", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/v1/aliases/DocumentChunksActive", r.URL.Path)
			json.NewEncoder(w).Encode(map[string]string{"alias": "DocumentChunksActive", "class": "DocumentChunks"})
		}))
		defer srv.Close()

		client := NewAliasClientForURL(srv.URL)
		target, err := client.Target(context.Background(), "DocumentChunksActive")

		require.NoError(t, err)
		assert.Equal(t, "DocumentChunks", target)
	})

	t.Run("Target returns empty string for a missing alias", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		client := NewAliasClientForURL(srv.URL)
		target, err := client.Target(context.Background(), "Missing")

		require.NoError(t, err)
		assert.Empty(t, target)
	})

	t.Run("Create posts alias and class", func(t *testing.T) {
		var got aliasPayload
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/v1/aliases", r.URL.Path)
			json.NewDecoder(r.Body).Decode(&got)
		}))
		defer srv.Close()

		client := NewAliasClientForURL(srv.URL)
		err := client.Create(context.Background(), "DocumentChunksActive", "DocumentChunks")

		require.NoError(t, err)
		assert.Equal(t, "DocumentChunksActive", got.Alias)
		assert.Equal(t, "DocumentChunks", got.Class)
	})

	t.Run("Switch puts the new class on the alias path", func(t *testing.T) {
		var got aliasPayload
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPut, r.Method)
			assert.Equal(t, "/v1/aliases/DocumentChunksActive", r.URL.Path)
			json.NewDecoder(r.Body).Decode(&got)
		}))
		defer srv.Close()

		client := NewAliasClientForURL(srv.URL)
		err := client.Switch(context.Background(), "DocumentChunksActive", "DocumentChunks_ep1234abcd_run20260101000000")

		require.NoError(t, err)
		assert.Equal(t, "DocumentChunks_ep1234abcd_run20260101000000", got.Class)
	})

	t.Run("surfaces non-2xx responses with detail", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "class not found", http.StatusUnprocessableEntity)
		}))
		defer srv.Close()

		client := NewAliasClientForURL(srv.URL)
		err := client.Switch(context.Background(), "DocumentChunksActive", "Nope")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "422")
		assert.Contains(t, err.Error(), "class not found")
	})

	t.Run("Delete removes only the alias", func(t *testing.T) {
		var method, path string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			method = r.Method
			path = r.URL.Path
		}))
		defer srv.Close()

		client := NewAliasClientForURL(srv.URL)
		err := client.Delete(context.Background(), "Stale")

		require.NoError(t, err)
		assert.Equal(t, http.MethodDelete, method)
		assert.Equal(t, "/v1/aliases/Stale", path)
	})
}
