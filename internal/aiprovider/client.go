// Package aiprovider is the external collaborator contract the Bridge
// calls once a telephony media stream has started: a signed, short-lived
// URL for the AI provider's conversational stream, which the Bridge dials
// as the call's AI leg (spec §4.4, §9). It is not fetched before the call
// is dialed. The AI agent's own behavior stays out of scope; only this
// thin request/response contract is implemented.
package aiprovider

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const requestTimeout = 5 * time.Second

// SignedURLRequest describes the call the streaming URL will be attached
// to, so the provider can scope the signature to it.
type SignedURLRequest struct {
	CampaignID string `json:"campaignId"`
	ContactID  string `json:"contactId"`
	AgentID    string `json:"agentId"`
}

type signedURLResponse struct {
	URL       string `json:"url"`
	ExpiresAt string `json:"expiresAt"`
}

// Client requests a signed streaming URL from the configured AI provider.
type Client interface {
	GetSignedStreamURL(ctx context.Context, req SignedURLRequest) (string, error)
}

type client struct {
	http    *resty.Client
	baseURL string
	apiKey  string
	agentID string
}

func New(baseURL, apiKey, agentID string) Client {
	return &client{
		http:    resty.New().SetTimeout(requestTimeout),
		baseURL: baseURL,
		apiKey:  apiKey,
		agentID: agentID,
	}
}

func (c *client) GetSignedStreamURL(ctx context.Context, req SignedURLRequest) (string, error) {
	if req.AgentID == "" {
		req.AgentID = c.agentID
	}

	var out signedURLResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetBody(req).
		SetResult(&out).
		Post(c.baseURL + "/v1/streams/signed-url")
	if err != nil {
		return "", fmt.Errorf("aiprovider: requesting signed url: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("aiprovider: signed url request failed with status %d", resp.StatusCode())
	}
	if out.URL == "" {
		return "", fmt.Errorf("aiprovider: response missing url")
	}
	return out.URL, nil
}
