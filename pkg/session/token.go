package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SandboxHeader carries the client-supplied sandbox identifier on
// credential requests.
const SandboxHeader = "X-Sandbox-ID"

// Credential is the opaque connection descriptor returned by the
// token-issuing service. It is fetched once per connect attempt.
type Credential struct {
	ServerURL        string `json:"serverUrl"`
	RoomName         string `json:"roomName"`
	ParticipantName  string `json:"participantName"`
	ParticipantToken string `json:"participantToken"`
}

// tokenRequest is the POST body. The room configuration names a target
// agent when agent routing is configured; otherwise the body is empty.
type tokenRequest struct {
	RoomConfig *roomConfig `json:"room_config,omitempty"`
}

type roomConfig struct {
	Agents []agentConfig `json:"agents"`
}

type agentConfig struct {
	AgentName string `json:"agent_name"`
}

// TokenClient fetches connection credentials from the token-issuing
// collaborator.
type TokenClient struct {
	endpoint   string
	sandboxID  string
	agentName  string
	httpClient *http.Client
}

// TokenOption configures the TokenClient.
type TokenOption func(*TokenClient)

// WithAgentName routes the room to a named agent.
func WithAgentName(name string) TokenOption {
	return func(c *TokenClient) { c.agentName = name }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) TokenOption {
	return func(c *TokenClient) { c.httpClient = client }
}

// NewTokenClient creates a client for the given endpoint and sandbox id.
func NewTokenClient(endpoint, sandboxID string, opts ...TokenOption) *TokenClient {
	c := &TokenClient{
		endpoint:   endpoint,
		sandboxID:  sandboxID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch requests one credential. Any non-JSON or error response is a
// *FetchError.
func (c *TokenClient) Fetch(ctx context.Context) (*Credential, error) {
	reqBody := tokenRequest{}
	if c.agentName != "" {
		reqBody.RoomConfig = &roomConfig{
			Agents: []agentConfig{{AgentName: c.agentName}},
		}
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("session: marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &FetchError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SandboxHeader, c.sandboxID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &FetchError{HTTPStatus: resp.StatusCode, Message: string(b)}
	}

	var cred Credential
	if err := json.NewDecoder(resp.Body).Decode(&cred); err != nil {
		return nil, &FetchError{HTTPStatus: resp.StatusCode, Message: "invalid JSON response: " + err.Error()}
	}
	if cred.ServerURL == "" || cred.RoomName == "" || cred.ParticipantName == "" || cred.ParticipantToken == "" {
		return nil, &FetchError{HTTPStatus: resp.StatusCode, Message: "credential response missing required fields"}
	}
	return &cred, nil
}
