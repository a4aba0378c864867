package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/postflow/engage/internal/entities"
)

// GatewayClient implements Adapter against the dashboard's platform
// gateway, the service that holds OAuth tokens and talks to the actual
// platform APIs.
type GatewayClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewGatewayClient creates an Adapter for the gateway at baseURL.
func NewGatewayClient(baseURL, token string, timeout time.Duration) *GatewayClient {
	return &GatewayClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// SendPublicReply posts a public comment reply.
func (g *GatewayClient) SendPublicReply(ctx context.Context, platform entities.Platform, postID, actorID, text string) error {
	return g.post(ctx, fmt.Sprintf("%s/v1/%s/replies", g.baseURL, platform), map[string]string{
		"post_id":  postID,
		"actor_id": actorID,
		"text":     text,
	})
}

// SendDirectMessage sends a DM to the actor.
func (g *GatewayClient) SendDirectMessage(ctx context.Context, platform entities.Platform, actorID, text string) error {
	return g.post(ctx, fmt.Sprintf("%s/v1/%s/messages", g.baseURL, platform), map[string]string{
		"actor_id": actorID,
		"text":     text,
	})
}

func (g *GatewayClient) post(ctx context.Context, url string, payload map[string]string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return Permanent(0, fmt.Sprintf("failed to encode payload: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Permanent(0, fmt.Sprintf("failed to build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return Transient(0, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	msg := readErrorBody(resp.Body)
	// 429 is throttling, not a misconfiguration — retry it.
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return Transient(resp.StatusCode, msg)
	}
	return Permanent(resp.StatusCode, msg)
}

func readErrorBody(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(b) == 0 {
		return "no response body"
	}
	return string(b)
}
