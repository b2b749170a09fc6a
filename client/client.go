// Package client is the typed remote-call wrapper for the session service,
// used by presentation layers. It distinguishes "the session no longer
// exists" from transient failure so callers can recover instead of showing a
// generic error.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrSessionNotFound marks a 404 from the service: the id was never created
// or the registry was reset by a restart. Callers should discard local
// session state and return to the entry flow, not retry.
var ErrSessionNotFound = errors.New("session not found")

const defaultTimeout = 10 * time.Second

// Session status values as they appear on the wire.
const (
	StatusWaiting   = "waiting"
	StatusInSession = "in_session"
	StatusEnded     = "ended"
)

type Session struct {
	ID       string `json:"id"`
	RoomName string `json:"roomName"`
	Status   string `json:"status"`
}

type JoinRequest struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	IsOrganizer bool   `json:"isOrganizer"`
}

type JoinResult struct {
	Token       string `json:"token"`
	SessionID   string `json:"sessionId"`
	RoomName    string `json:"roomName"`
	Identity    string `json:"identity"`
	IsOrganizer bool   `json:"isOrganizer"`
	LivekitURL  string `json:"livekitUrl"`
}

type RaiseHandEvent struct {
	Version         string `json:"version"`
	Type            string `json:"type"`
	SessionID       string `json:"sessionId"`
	ParticipantID   string `json:"participantId"`
	ParticipantName string `json:"participantName"`
	CreatedAt       string `json:"createdAt"`
}

// NewRaiseHandEvent builds a v1 raise-hand envelope stamped with the
// caller's clock.
func NewRaiseHandEvent(sessionID, participantID, participantName string) RaiseHandEvent {
	return RaiseHandEvent{
		Version:         "v1",
		Type:            "raise_hand",
		SessionID:       sessionID,
		ParticipantID:   participantID,
		ParticipantName: participantName,
		CreatedAt:       time.Now().UTC().Format(time.RFC3339),
	}
}

type RaiseHandResult struct {
	Accepted      bool `json:"accepted"`
	QueuePosition int  `json:"queuePosition"`
}

type StatusInfo struct {
	SessionID           string   `json:"sessionId"`
	RoomName            string   `json:"roomName"`
	Status              string   `json:"status"`
	AgentJoined         bool     `json:"agentJoined"`
	AgentIdentity       string   `json:"agentIdentity"`
	ParticipantCount    int      `json:"participantCount"`
	LivekitParticipants []string `json:"livekitParticipants"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the service at baseURL. Pass nil to use a default
// HTTP client with a 10 second timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

func (c *Client) CreateSession(ctx context.Context, roomName string) (*Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodPost, "/api/sessions", map[string]string{"roomName": roomName}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+sessionID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Join(ctx context.Context, sessionID string, req JoinRequest) (*JoinResult, error) {
	var out JoinResult
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+sessionID+"/join", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Start(ctx context.Context, sessionID string) (*Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+sessionID+"/start", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) End(ctx context.Context, sessionID string) (*Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+sessionID+"/end", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RaiseHand submits ev and returns the assigned 1-based queue position.
func (c *Client) RaiseHand(ctx context.Context, ev RaiseHandEvent) (int, error) {
	var out RaiseHandResult
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+ev.SessionID+"/raise-hand", ev, &out); err != nil {
		return 0, err
	}
	return out.QueuePosition, nil
}

func (c *Client) Status(ctx context.Context, sessionID string) (*StatusInfo, error) {
	var out StatusInfo
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+sessionID+"/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do issues one request and classifies the outcome: 404 wraps
// ErrSessionNotFound, any other non-2xx is a generic failure.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, ErrSessionNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%s %s: request failed with status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
