// Package rules is the boundary to the external D&D rules engine. The
// gateway never adjudicates legality itself; it relays a requested action
// and broadcasts whatever the engine decided.
package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Action is a player's requested action, forwarded verbatim.
type Action struct {
	ActionType string         `json:"actionType"`
	ActorID    string         `json:"actorId"`
	TargetID   string         `json:"targetId,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
}

// SessionContext is the slice of session state the engine needs to evaluate
// an action.
type SessionContext struct {
	SessionID  string   `json:"sessionId"`
	CampaignID string   `json:"campaignId,omitempty"`
	Round      int      `json:"round"`
	TurnIndex  int      `json:"turnIndex"`
	Initiative []string `json:"initiative,omitempty"`
}

// Outcome is the engine's verdict.
type Outcome struct {
	Legal   bool           `json:"legal"`
	Reason  string         `json:"reason,omitempty"`
	Effects map[string]any `json:"effects,omitempty"`
}

// Adjudicator evaluates whether an action is legal and what it does.
type Adjudicator interface {
	Evaluate(ctx context.Context, sc SessionContext, action Action) (Outcome, error)
}

// Client calls the rules engine over its JSON HTTP endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *Client) Evaluate(ctx context.Context, sc SessionContext, action Action) (Outcome, error) {
	body, err := json.Marshal(struct {
		Session SessionContext `json:"session"`
		Action  Action         `json:"action"`
	}{Session: sc, Action: action})
	if err != nil {
		return Outcome{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/evaluate", bytes.NewReader(body))
	if err != nil {
		return Outcome{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Outcome{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Outcome{}, fmt.Errorf("rules engine returned %s", resp.Status)
	}

	var outcome Outcome
	if err := json.NewDecoder(resp.Body).Decode(&outcome); err != nil {
		return Outcome{}, err
	}
	return outcome, nil
}

// Passthrough allows every action. It is the default when no engine address
// is configured and keeps standalone deployments playable.
type Passthrough struct{}

func (Passthrough) Evaluate(_ context.Context, _ SessionContext, action Action) (Outcome, error) {
	return Outcome{
		Legal:   true,
		Effects: map[string]any{"actionType": action.ActionType},
	}, nil
}
