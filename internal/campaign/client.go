// Package campaign talks to the remote dialer API: creating campaigns,
// appending customers in batches, and listing the assistants, workflows
// and phone numbers a campaign can be built from.
//
// The bearer credential is supplied per call and never stored; the
// client only holds the base URL and transport.
package campaign

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ResourceKind selects which resource listing to fetch.
type ResourceKind string

const (
	ResourceAssistants   ResourceKind = "assistants"
	ResourceWorkflows    ResourceKind = "workflows"
	ResourcePhoneNumbers ResourceKind = "phoneNumbers"
)

// resourcePaths maps a ResourceKind to its API path.
var resourcePaths = map[ResourceKind]string{
	ResourceAssistants:   "/assistant",
	ResourceWorkflows:    "/workflow",
	ResourcePhoneNumbers: "/phone-number",
}

// Customer is one lead as the API accepts it.
type Customer struct {
	Number string `json:"number"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
}

// Selector picks what drives the campaign's call logic. Exactly one of
// AssistantID or WorkflowID must be set.
type Selector struct {
	AssistantID string
	WorkflowID  string
}

// Valid reports whether exactly one selector field is set.
func (s Selector) Valid() bool {
	return (s.AssistantID != "") != (s.WorkflowID != "")
}

// CreateCampaignRequest holds everything the create call needs. The
// first customer batch rides along with campaign creation so a failed
// create leaves nothing behind to clean up.
type CreateCampaignRequest struct {
	Name          string
	Selector      Selector
	PhoneNumberID string
	Customers     []Customer
}

// Client is the campaign API client.
type Client struct {
	baseURL string
	http    Doer
}

// NewClient builds a Client against baseURL with retrying transport.
func NewClient(baseURL string, timeout time.Duration, maxRetries int) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    NewRetryDoer(&http.Client{Timeout: timeout}, maxRetries),
	}
}

// SetHTTPClient replaces the transport. Used in tests.
func (c *Client) SetHTTPClient(d Doer) {
	c.http = d
}

type createCampaignBody struct {
	Name          string     `json:"name"`
	AssistantID   string     `json:"assistantId,omitempty"`
	WorkflowID    string     `json:"workflowId,omitempty"`
	PhoneNumberID string     `json:"phoneNumberId,omitempty"`
	Customers     []Customer `json:"customers"`
}

type createCampaignResponse struct {
	ID string `json:"id"`
}

// CreateCampaign creates a campaign with its initial customer list and
// returns the new campaign's id.
func (c *Client) CreateCampaign(ctx context.Context, token string, req CreateCampaignRequest) (string, error) {
	if !req.Selector.Valid() {
		return "", fmt.Errorf("exactly one of assistant or workflow must be selected")
	}

	body := createCampaignBody{
		Name:          req.Name,
		AssistantID:   req.Selector.AssistantID,
		WorkflowID:    req.Selector.WorkflowID,
		PhoneNumberID: req.PhoneNumberID,
		Customers:     req.Customers,
	}

	respBody, err := c.doRequest(ctx, token, http.MethodPost, "/campaign", body)
	if err != nil {
		return "", err
	}

	var resp createCampaignResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("parse create response: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("create response missing campaign id")
	}
	return resp.ID, nil
}

type appendCustomersBody struct {
	Customers []Customer `json:"customers"`
}

// AppendCustomers adds a batch of customers to an existing campaign.
func (c *Client) AppendCustomers(ctx context.Context, token, campaignID string, customers []Customer) error {
	body := appendCustomersBody{Customers: customers}
	_, err := c.doRequest(ctx, token, http.MethodPatch, "/campaign/"+campaignID, body)
	return err
}

// ListResources fetches the raw resource listing for kind. The payload
// is passed through untouched; the caller renders or filters it.
func (c *Client) ListResources(ctx context.Context, token string, kind ResourceKind) (json.RawMessage, error) {
	path, ok := resourcePaths[kind]
	if !ok {
		return nil, fmt.Errorf("unknown resource kind: %s", kind)
	}
	return c.doRequest(ctx, token, http.MethodGet, path, nil)
}

// doRequest performs one authenticated call and returns the response
// body, translating non-2xx statuses into errors carrying the server's
// message.
func (c *Client) doRequest(ctx context.Context, token, method, path string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apiError(resp.StatusCode, respBody)
	}

	return respBody, nil
}

// apiError extracts the server's message field when present, falling
// back to the raw body.
func apiError(status int, body []byte) error {
	var payload struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Message) > 0 {
		var msg string
		if json.Unmarshal(payload.Message, &msg) == nil && msg != "" {
			return fmt.Errorf("campaign API error (status %d): %s", status, msg)
		}
		var msgs []string
		if json.Unmarshal(payload.Message, &msgs) == nil && len(msgs) > 0 {
			return fmt.Errorf("campaign API error (status %d): %s", status, msgs[0])
		}
	}
	return fmt.Errorf("campaign API error (status %d): %s", status, bytes.TrimSpace(body))
}
