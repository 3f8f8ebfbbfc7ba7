package ouvidorsdk

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

// Client is a minimal Ouvidor HTTP API client.
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

// Manifestation represents the API manifestation model (partial).
type Manifestation struct {
	ID           string         `json:"id"`
	Protocol     string         `json:"protocol"`
	Type         string         `json:"type"`
	Status       string         `json:"status"`
	Priority     string         `json:"priority"`
	Description  string         `json:"description"`
	Anonymous    bool           `json:"anonymous"`
	Confidential bool           `json:"confidential"`
	Response     *string        `json:"response,omitempty"`
	CreatedAt    string         `json:"created_at"`
	SLA          map[string]any `json:"sla,omitempty"`
}

// Forwarding represents a routing record.
type Forwarding struct {
	ID                  string  `json:"id"`
	ManifestationID     string  `json:"manifestation_id"`
	DestinationSectorID string  `json:"destination_sector_id"`
	Status              string  `json:"status"`
	ReturnNote          *string `json:"return_note,omitempty"`
	CreatedAt           string  `json:"created_at"`
}

// ActionPlan represents a sector's corrective work item.
type ActionPlan struct {
	ID              string `json:"id"`
	ManifestationID string `json:"manifestation_id"`
	Title           string `json:"title"`
	SectorID        string `json:"sector_id"`
	Status          string `json:"status"`
	Notes           string `json:"notes,omitempty"`
}

// PublicStatus is the citizen-facing protocol lookup view.
type PublicStatus struct {
	Protocol    string         `json:"protocol"`
	Type        string         `json:"type"`
	Status      string         `json:"status"`
	Response    *string        `json:"response,omitempty"`
	CreatedAt   string         `json:"created_at"`
	RespondedAt *string        `json:"responded_at,omitempty"`
	SLA         map[string]any `json:"sla,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedManifestations wraps list responses with cursors.
type PaginatedManifestations struct {
	Items      []Manifestation `json:"items"`
	NextCursor string          `json:"next_cursor"`
}

// CreateManifestationInput is the intake payload. Complainant may be nil
// for anonymous entries.
type CreateManifestationInput struct {
	Type         string            `json:"type"`
	Description  string            `json:"description"`
	Channel      string            `json:"channel"`
	Priority     string            `json:"priority,omitempty"`
	Anonymous    bool              `json:"anonymous,omitempty"`
	Confidential bool              `json:"confidential,omitempty"`
	Complainant  *ComplainantInput `json:"complainant,omitempty"`
}

// ComplainantInput identifies the citizen behind a manifestation.
type ComplainantInput struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Consent bool   `json:"consent"`
}

// CreateManifestation registers a manifestation. No credentials are needed;
// this is the citizen intake endpoint.
func (c *Client) CreateManifestation(ctx context.Context, input CreateManifestationInput) (Manifestation, error) {
	var resp Manifestation
	err := c.do(ctx, http.MethodPost, c.apiPath("manifestations"), input, &resp)
	return resp, err
}

// LookupProtocol returns the public status of a protocol.
func (c *Client) LookupProtocol(ctx context.Context, protocol string) (PublicStatus, error) {
	var resp PublicStatus
	endpoint := c.apiPath(fmt.Sprintf("public/manifestations/%s", url.PathEscape(protocol)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Manifestations returns a paginated listing.
func (c *Client) Manifestations(ctx context.Context, limit int, cursor string) (PaginatedManifestations, error) {
	endpoint := c.apiPath("manifestations")
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
	var resp PaginatedManifestations
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetManifestation fetches a manifestation by id.
func (c *Client) GetManifestation(ctx context.Context, id string) (Manifestation, error) {
	var resp Manifestation
	endpoint := c.apiPath(fmt.Sprintf("manifestations/%s", url.PathEscape(id)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Forward routes a manifestation to a sector.
func (c *Client) Forward(ctx context.Context, id, sectorID, instructions string) (Manifestation, Forwarding, error) {
	body := map[string]any{
		"destination_sector_id": sectorID,
		"instructions":          instructions,
	}
	var resp struct {
		Manifestation Manifestation `json:"manifestation"`
		Forwarding    Forwarding    `json:"forwarding"`
	}
	endpoint := c.apiPath(fmt.Sprintf("manifestations/%s/forward", url.PathEscape(id)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp.Manifestation, resp.Forwarding, err
}

// Respond records the final response.
func (c *Client) Respond(ctx context.Context, id, response string) (Manifestation, error) {
	var resp Manifestation
	endpoint := c.apiPath(fmt.Sprintf("manifestations/%s/respond", url.PathEscape(id)))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"response": response}, &resp)
	return resp, err
}

// Close closes a responded manifestation.
func (c *Client) Close(ctx context.Context, id string) (Manifestation, error) {
	var resp Manifestation
	endpoint := c.apiPath(fmt.Sprintf("manifestations/%s/close", url.PathEscape(id)))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// CreatePlan creates an action plan under a manifestation.
func (c *Client) CreatePlan(ctx context.Context, manifestationID, title, sectorID string) (ActionPlan, error) {
	body := map[string]any{
		"title":     title,
		"sector_id": sectorID,
	}
	var resp ActionPlan
	endpoint := c.apiPath(fmt.Sprintf("manifestations/%s/plans", url.PathEscape(manifestationID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// AdvancePlan moves a plan to the next status.
func (c *Client) AdvancePlan(ctx context.Context, planID, status string) (ActionPlan, error) {
	var resp ActionPlan
	endpoint := c.apiPath(fmt.Sprintf("plans/%s/advance", url.PathEscape(planID)))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"status": status}, &resp)
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

func (c *Client) apiPath(p string) string {
	return "v1/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
