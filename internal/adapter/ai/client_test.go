package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezsentencefix/ez-sentence-fix/internal/config"
)

func testConfig(baseURL string) config.Config {
	return config.Config{
		AppEnv:        "test",
		OpenAIAPIKey:  "test-key",
		OpenAIBaseURL: baseURL,
		OpenAIModel:   "gpt-4o-mini",
		LLMTimeout:    5 * time.Second,
	}
}

func chatResponse(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	})
	return string(b)
}

func TestComplete_Success(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])

		_, _ = w.Write([]byte(chatResponse(`{"ok":true}`)))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	got, err := c.Complete(context.Background(), "system", "user", 1024)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, got)
}

func TestComplete_RetriesOn429(t *testing.T) {
	t.Parallel()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(chatResponse("recovered")))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	got, err := c.Complete(context.Background(), "s", "u", 256)
	require.NoError(t, err)
	assert.Equal(t, "recovered", got)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestComplete_PermanentOn4xx(t *testing.T) {
	t.Parallel()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	_, err := c.Complete(context.Background(), "s", "u", 256)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "4xx must not be retried")
}

func TestComplete_AzurePreferred(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/grader/chat/completions", r.URL.Path)
		assert.Equal(t, "2024-11-22", r.URL.Query().Get("api-version"))
		assert.Equal(t, "azure-key", r.Header.Get("api-key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, hasModel := body["model"]
		assert.False(t, hasModel, "azure deployments carry the model in the URL")

		_, _ = w.Write([]byte(chatResponse("from azure")))
	}))
	defer srv.Close()

	cfg := testConfig("http://unused")
	cfg.AzureOpenAIEndpoint = srv.URL
	cfg.AzureOpenAIKey = "azure-key"
	cfg.AzureOpenAIDeployment = "grader"
	cfg.AzureOpenAIAPIVersion = "2024-11-22"

	c := New(cfg)
	got, err := c.Complete(context.Background(), "s", "u", 256)
	require.NoError(t, err)
	assert.Equal(t, "from azure", got)
}

func TestComplete_NoProviderConfigured(t *testing.T) {
	t.Parallel()
	c := New(config.Config{AppEnv: "test", LLMTimeout: time.Second})
	_, err := c.Complete(context.Background(), "s", "u", 256)
	assert.Error(t, err)
}
