// Package whatsapp is the outbound provider client: two REST message shapes
// against the Graph-style messages endpoint.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

type Client struct {
	baseURL       string
	phoneNumberID string
	accessToken   string
	enabled       bool
	httpClient    *http.Client
}

// NewClient builds the provider client. When enabled is false the client runs
// dry: calls succeed without reaching the provider, which keeps local
// pipelines and demos safe.
func NewClient(baseURL, phoneNumberID, accessToken string, enabled bool) *Client {
	return &Client{
		baseURL:       baseURL,
		phoneNumberID: phoneNumberID,
		accessToken:   accessToken,
		enabled:       enabled,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) SendText(ctx context.Context, contactID, body string) (string, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                contactID,
		"type":              "text",
		"text":              map[string]string{"body": body},
	}
	return c.send(ctx, payload)
}

func (c *Client) SendTemplate(ctx context.Context, contactID, templateName string) (string, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                contactID,
		"type":              "template",
		"template": map[string]any{
			"name":     templateName,
			"language": map[string]string{"code": "en_US"},
		},
	}
	return c.send(ctx, payload)
}

func (c *Client) send(ctx context.Context, payload map[string]any) (string, error) {
	if !c.enabled {
		slog.Info("outbound replies disabled, skipping provider call", "to", payload["to"])
		return "", nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal provider payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("provider returned status %d: %s", resp.StatusCode, snippet)
	}

	var parsed struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode provider response: %w", err)
	}
	if len(parsed.Messages) == 0 {
		return "", nil
	}
	return parsed.Messages[0].ID, nil
}
