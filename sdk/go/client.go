package scavengersdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Scavenger HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Participant represents a registered chain actor.
type Participant struct {
	Address      string   `json:"address"`
	Role         string   `json:"role"`
	Capabilities []string `json:"capabilities,omitempty"`
	Name         string   `json:"name,omitempty"`
	Latitude     int64    `json:"latitude"`
	Longitude    int64    `json:"longitude"`
	RegisteredAt string   `json:"registered_at"`
}

// Material represents a tracked waste unit.
type Material struct {
	ID          int64  `json:"id"`
	Owner       string `json:"owner"`
	Kind        string `json:"kind"`
	Quantity    int64  `json:"quantity"`
	Description string `json:"description,omitempty"`
	SubmittedAt string `json:"submitted_at"`
}

// Transfer represents one ownership change.
type Transfer struct {
	WasteID       int64  `json:"waste_id"`
	From          string `json:"from"`
	To            string `json:"to"`
	Note          string `json:"note,omitempty"`
	TransferredAt string `json:"transferred_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// RegisterParticipant registers an address with a role.
func (c *Client) RegisterParticipant(ctx context.Context, address, role, name string) (Participant, error) {
	body := map[string]any{
		"address": address,
		"role":    role,
		"name":    name,
	}
	var resp Participant
	err := c.do(ctx, http.MethodPost, "v0/participants", body, &resp)
	return resp, err
}

// GetParticipant fetches a participant by address.
func (c *Client) GetParticipant(ctx context.Context, address string) (Participant, error) {
	var resp Participant
	err := c.do(ctx, http.MethodGet, "v0/participants/"+url.PathEscape(address), nil, &resp)
	return resp, err
}

// IsRegistered reports whether an address is registered.
func (c *Client) IsRegistered(ctx context.Context, address string) (bool, error) {
	var resp struct {
		Registered bool `json:"registered"`
	}
	endpoint := fmt.Sprintf("v0/participants/%s/registered", url.PathEscape(address))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Registered, err
}

// UpdateRole changes a participant's role.
func (c *Client) UpdateRole(ctx context.Context, address, role string) (Participant, error) {
	var resp Participant
	endpoint := fmt.Sprintf("v0/participants/%s/role", url.PathEscape(address))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"role": role}, &resp)
	return resp, err
}

// SubmitMaterial submits a new waste unit owned by the caller.
func (c *Client) SubmitMaterial(ctx context.Context, kind string, quantity int64, description string) (Material, error) {
	body := map[string]any{
		"kind":        kind,
		"quantity":    quantity,
		"description": description,
	}
	var resp Material
	err := c.do(ctx, http.MethodPost, "v0/materials", body, &resp)
	return resp, err
}

// GetMaterial fetches a material by id.
func (c *Client) GetMaterial(ctx context.Context, id int64) (Material, error) {
	var resp Material
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/materials/%d", id), nil, &resp)
	return resp, err
}

// TransferWaste moves ownership of a material and returns its new state.
func (c *Client) TransferWaste(ctx context.Context, wasteID int64, from, to, note string) (Material, error) {
	body := map[string]any{
		"from": from,
		"to":   to,
		"note": note,
	}
	var resp Material
	endpoint := fmt.Sprintf("v0/materials/%d/transfers", wasteID)
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// History returns the full transfer sequence for a material.
func (c *Client) History(ctx context.Context, wasteID int64) ([]Transfer, error) {
	var resp []Transfer
	endpoint := fmt.Sprintf("v0/materials/%d/transfers", wasteID)
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
