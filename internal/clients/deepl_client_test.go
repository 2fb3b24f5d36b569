package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/doctranslate-worker/internal/errors"
)

func TestDeepLTranslateBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/translate", r.URL.Path)
		assert.Equal(t, "DeepL-Auth-Key dl-key", r.Header.Get("Authorization"))

		var req deeplRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ID", req.TargetLang)

		resp := map[string]interface{}{"translations": []map[string]string{}}
		list := []map[string]string{}
		for _, text := range req.Text {
			list = append(list, map[string]string{"detected_source_language": "EN", "text": "id:" + text})
		}
		resp["translations"] = list
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c, err := NewDeepLClient(DeepLConfig{APIKey: "dl-key", Endpoint: server.URL})
	require.NoError(t, err)

	out, err := c.TranslateBatch(context.Background(), []string{"a", "b"}, "id")
	require.NoError(t, err)
	assert.Equal(t, []string{"id:a", "id:b"}, out)
	assert.Equal(t, "deepl", c.Name())
}

func TestDeepLQuotaExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(456)
	}))
	defer server.Close()

	c, err := NewDeepLClient(DeepLConfig{APIKey: "dl-key", Endpoint: server.URL, Retry: NoRetry()})
	require.NoError(t, err)

	_, err = c.Translate(context.Background(), "a", "de")
	assert.Equal(t, errors.ErrorTranslationFailed, errors.CodeOf(err))
}

func TestDeepLMalformedBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `<html>`},
		{name: "wrong count", body: `{"translations":[]}`},
		{name: "missing text", body: `{"translations":[{"detected_source_language":"EN"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c, err := NewDeepLClient(DeepLConfig{APIKey: "dl-key", Endpoint: server.URL, Retry: NoRetry()})
			require.NoError(t, err)

			_, err = c.Translate(context.Background(), "a", "id")
			assert.Equal(t, errors.ErrorTranslationFailed, errors.CodeOf(err))
		})
	}
}
