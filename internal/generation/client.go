// Package generation calls the AI text generation service with a bounded
// timeout. Failures are never fatal: the dispatch worker falls back to the
// rule's static content.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request carries the context the generator writes a response from.
type Request struct {
	Prompt    string `json:"prompt"`
	Tone      string `json:"tone,omitempty"`
	EventText string `json:"event_text"`
	ActorName string `json:"actor_name,omitempty"`
	Platform  string `json:"platform"`
}

// Generator produces response text for an engagement.
type Generator interface {
	Generate(ctx context.Context, req *Request) (string, error)
}

// Client is an HTTP Generator against the generation service.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	timeout  time.Duration
	client   *http.Client
}

// NewClient creates a Generator for the service at endpoint. The timeout
// bounds each Generate call independently of the caller's context.
func NewClient(endpoint, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	Tone      string `json:"tone,omitempty"`
	EventText string `json:"event_text"`
	ActorName string `json:"actor_name,omitempty"`
	Platform  string `json:"platform"`
}

type generateResponse struct {
	Text string `json:"text"`
}

// Generate requests response text. Any transport or service failure is
// returned as an error for the caller to treat as "use static fallback".
func (c *Client) Generate(ctx context.Context, req *Request) (string, error) {
	if c.endpoint == "" {
		return "", errors.New("generation service not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		Model:     c.model,
		Prompt:    req.Prompt,
		Tone:      req.Tone,
		EventText: req.EventText,
		ActorName: req.ActorName,
		Platform:  req.Platform,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 512)) //nolint:errcheck
		return "", fmt.Errorf("generation service returned status %d", resp.StatusCode)
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode generation response: %w", err)
	}
	if decoded.Text == "" {
		return "", errors.New("generation service returned empty text")
	}
	return decoded.Text, nil
}
