package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client provides typed access to the domainmap API for interactive tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:4000"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg := extractError(resp.Body)
		return APIError{Status: resp.StatusCode, Message: msg}
	}

	if v == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Error)
}

// Domain mirrors the API domain payload.
type Domain struct {
	ID            string    `json:"id"`
	SiteID        string    `json:"site_id"`
	Domain        string    `json:"domain"`
	Stage         string    `json:"stage"`
	Secure        bool      `json:"secure"`
	PrimaryDomain bool      `json:"primary_domain"`
	Active        bool      `json:"active"`
	Cycle         int       `json:"cycle"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DNSRecord is one DNS record reported for a domain.
type DNSRecord struct {
	Type string `json:"type"`
	Data string `json:"data"`
	IP   string `json:"ip"`
	TTL  int    `json:"ttl"`
	Host string `json:"host"`
}

// DNSReport pairs a domain's records with the network addresses it should point at.
type DNSReport struct {
	Entries   []DNSRecord `json:"entries"`
	NetworkIP []string    `json:"network_ip"`
}

// LogEntry is a line of a log channel.
type LogEntry struct {
	ID        int64     `json:"id"`
	Channel   string    `json:"channel"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// IntegrationResult is the outcome of one host integration check.
type IntegrationResult struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// ListDomains returns mapped domains, optionally filtered by site.
func (c *Client) ListDomains(ctx context.Context, token, siteID string, limit int) ([]Domain, error) {
	q := url.Values{}
	if strings.TrimSpace(siteID) != "" {
		q.Set("site_id", siteID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/domains"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var domains []Domain
	if err := c.do(ctx, http.MethodGet, path, nil, token, &domains); err != nil {
		return nil, err
	}
	return domains, nil
}

// CreateDomain maps host onto a site.
func (c *Client) CreateDomain(ctx context.Context, token, siteID, host string, primary bool) (Domain, error) {
	body := map[string]any{
		"site_id":        siteID,
		"domain":         host,
		"primary_domain": primary,
	}
	var d Domain
	if err := c.do(ctx, http.MethodPost, "/domains", body, token, &d); err != nil {
		return Domain{}, err
	}
	return d, nil
}

// DeleteDomain removes a mapping.
func (c *Client) DeleteDomain(ctx context.Context, token, id string) error {
	return c.do(ctx, http.MethodDelete, "/domains/"+url.PathEscape(id), nil, token, nil)
}

// RestartDomain restarts verification of a domain.
func (c *Client) RestartDomain(ctx context.Context, token, id string) (Domain, error) {
	var d Domain
	if err := c.do(ctx, http.MethodPost, "/domains/"+url.PathEscape(id)+"/restart", nil, token, &d); err != nil {
		return Domain{}, err
	}
	return d, nil
}

// DomainDNS returns the current DNS report for a domain.
func (c *Client) DomainDNS(ctx context.Context, token, id string) (DNSReport, error) {
	var report DNSReport
	if err := c.do(ctx, http.MethodGet, "/domains/"+url.PathEscape(id)+"/dns", nil, token, &report); err != nil {
		return DNSReport{}, err
	}
	return report, nil
}

// GetSetting reads a setting value.
func (c *Client) GetSetting(ctx context.Context, token, key string) (any, error) {
	var resp struct {
		Value any `json:"value"`
	}
	if err := c.do(ctx, http.MethodGet, "/settings/"+url.PathEscape(key), nil, token, &resp); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// SetSetting stores a setting value and returns the normalized result.
func (c *Client) SetSetting(ctx context.Context, token, key string, value any) (any, error) {
	var resp struct {
		Value any `json:"value"`
	}
	if err := c.do(ctx, http.MethodPut, "/settings/"+url.PathEscape(key), map[string]any{"value": value}, token, &resp); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// ListLogs returns recent lines of a log channel.
func (c *Client) ListLogs(ctx context.Context, token, channel string, limit int) ([]LogEntry, error) {
	path := "/logs/" + url.PathEscape(channel)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var entries []LogEntry
	if err := c.do(ctx, http.MethodGet, path, nil, token, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// TestIntegrations runs the server-side checks of every host integration.
func (c *Client) TestIntegrations(ctx context.Context, token string) ([]IntegrationResult, error) {
	var results []IntegrationResult
	if err := c.do(ctx, http.MethodGet, "/integrations/test", nil, token, &results); err != nil {
		return nil, err
	}
	return results, nil
}
