// Package ai implements the LLM client backed by Azure OpenAI with a
// plain OpenAI-compatible fallback.
package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ezsentencefix/ez-sentence-fix/internal/adapter/ai/tokencount"
	"github.com/ezsentencefix/ez-sentence-fix/internal/adapter/observability"
	"github.com/ezsentencefix/ez-sentence-fix/internal/config"
	"github.com/ezsentencefix/ez-sentence-fix/internal/domain"
)

// contextWindow is the token budget assumed for the chat models in use.
// gpt-4o family and recent Azure deployments all carry at least 128k.
const contextWindow = 128000

// Client implements domain.LLMClient over the Azure OpenAI or OpenAI
// chat-completions API.
type Client struct {
	cfg     config.Config
	hc      *http.Client
	counter *tokencount.Counter
}

// New constructs a Client with the configured request timeout.
func New(cfg config.Config) *Client {
	return &Client{
		cfg:     cfg,
		hc:      &http.Client{Timeout: cfg.LLMTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		counter: tokencount.DefaultCounter,
	}
}

func (c *Client) getBackoffConfig() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()
	maxElapsedTime, initialInterval, maxInterval, multiplier := c.cfg.GetAIBackoffConfig()
	expo.MaxElapsedTime = maxElapsedTime
	expo.InitialInterval = initialInterval
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier
	return expo
}

// endpoint returns the provider name, request URL, and auth header for
// the active provider. Azure wins when fully configured.
func (c *Client) endpoint() (provider, url, authHeader, authValue string, err error) {
	if c.cfg.AzureOpenAIEnabled() {
		url = fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			c.cfg.AzureOpenAIEndpoint, c.cfg.AzureOpenAIDeployment, c.cfg.AzureOpenAIAPIVersion)
		return "azure", url, "api-key", c.cfg.AzureOpenAIKey, nil
	}
	if c.cfg.OpenAIAPIKey != "" {
		return "openai", c.cfg.OpenAIBaseURL + "/chat/completions", "Authorization", "Bearer " + c.cfg.OpenAIAPIKey, nil
	}
	return "", "", "", "", fmt.Errorf("%w: no LLM provider configured", domain.ErrInvalidArgument)
}

// Complete sends a chat completion and returns the assistant message content.
// maxTokens caps the completion; it is trimmed further when the prompt
// leaves less room in the context window.
func (c *Client) Complete(ctx domain.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	provider, url, authHeader, authValue, err := c.endpoint()
	if err != nil {
		return "", err
	}

	promptTokens := c.counter.CountTokens(systemPrompt+userPrompt, c.cfg.OpenAIModel)
	budget := c.counter.CompletionBudget(promptTokens, contextWindow, maxTokens)

	body := map[string]any{
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"max_tokens":  budget,
		"temperature": 0.2,
	}
	if provider == "openai" {
		body["model"] = c.cfg.OpenAIModel
	}
	b, _ := json.Marshal(body)

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	op := func() error {
		start := time.Now()
		// Recreate request each attempt to avoid reusing consumed bodies
		r, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		r.Header.Set(authHeader, authValue)
		r.Header.Set("Content-Type", "application/json")
		resp, err := c.hc.Do(r)
		observability.LLMRequestsTotal.WithLabelValues(provider, "chat").Inc()
		observability.LLMRequestDuration.WithLabelValues(provider, "chat").Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			// Retryable: let backoff handle retries
			slog.Warn("llm provider rate limited",
				slog.String("provider", provider), slog.Int("status", resp.StatusCode))
			return fmt.Errorf("rate limited: 429")
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			snippet := string(bodyBytes)
			if len(snippet) > 512 {
				snippet = snippet[:512]
			}
			slog.Warn("llm provider 4xx",
				slog.String("provider", provider), slog.Int("status", resp.StatusCode),
				slog.String("body", snippet))
			return backoff.Permanent(fmt.Errorf("chat status %d", resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			slog.Error("llm provider non-2xx",
				slog.String("provider", provider), slog.Int("status", resp.StatusCode))
			return fmt.Errorf("chat status %d", resp.StatusCode)
		}
		if err := json.Unmarshal(bodyBytes, &out); err != nil {
			return err
		}
		return nil
	}

	bo := backoff.WithContext(c.getBackoffConfig(), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		if errors.Is(err, ctx.Err()) {
			return "", fmt.Errorf("op=ai.Complete: %w: %v", domain.ErrUpstreamTimeout, err)
		}
		return "", fmt.Errorf("op=ai.Complete: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("op=ai.Complete: %w: empty choices", domain.ErrSchemaInvalid)
	}
	return out.Choices[0].Message.Content, nil
}
