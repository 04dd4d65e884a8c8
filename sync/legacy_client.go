// ABOUTME: HTTP client for the legacy system's JSON sync feeds
// ABOUTME: POSTs lastModified per category and tolerates the feed's empty-array quirks
package sync

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

// LegacyTimeLayout is the timestamp format the legacy feed expects.
const LegacyTimeLayout = "2006-01-02 15:04:05"

const (
	defaultEndpointParam = "var"
	defaultUserAgent     = "EspoCRM-DataSync/1.0"
	defaultTimeout       = 30 * time.Second
	maxBodyBytes         = 64 << 20
)

// Endpoints maps each category to the feed name selected by the endpoint parameter.
var Endpoints = map[string]string{
	CategoryCompanies:       "sync_companies",
	CategoryContacts:        "sync_contacts",
	CategoryPublications:    "sync_publications",
	CategoryStaff:           "sync_staff",
	CategoryTeamAssignments: "sync_sales_teams",
	CategoryOpportunities:   "sync_opportunities",
}

// Source fetches changed records for a category.
type Source interface {
	Fetch(ctx context.Context, category string, since *time.Time) (*Batch, error)
}

type LegacyClientOptions struct {
	BaseURL       string
	EndpointParam string
	UserAgent     string
	Timeout       time.Duration
	HTTPClient    *http.Client
}

// LegacyClient talks to the legacy system's sync API.
type LegacyClient struct {
	baseURL       string
	endpointParam string
	userAgent     string
	httpClient    *http.Client
}

func NewLegacyClient(opts LegacyClientOptions) (*LegacyClient, error) {
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("legacy base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid legacy base url: %w", err)
	}
	param := strings.TrimSpace(opts.EndpointParam)
	if param == "" {
		param = defaultEndpointParam
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &LegacyClient{
		baseURL:       base,
		endpointParam: param,
		userAgent:     ua,
		httpClient:    httpClient,
	}, nil
}

// Fetch issues one request for the category. A nil since omits lastModified,
// which the legacy system treats as "everything".
func (c *LegacyClient) Fetch(ctx context.Context, category string, since *time.Time) (*Batch, error) {
	endpoint, ok := Endpoints[category]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}

	target, err := c.endpointURL(endpoint)
	if err != nil {
		return nil, sourceError(category, err)
	}

	form := url.Values{}
	if since != nil {
		form.Set("lastModified", since.Format(LegacyTimeLayout))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, sourceError(category, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, sourceError(category, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, sourceError(category, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, sourceError(category, fmt.Errorf("HTTP %d: %s", resp.StatusCode, snippet(body)))
	}

	items, err := decodeFeed(body)
	if err != nil {
		return nil, sourceError(category, err)
	}
	return ParseRecords(category, items)
}

func (c *LegacyClient) endpointURL(endpoint string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(c.endpointParam, endpoint)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// decodeFeed turns a response body into raw items. It accepts a bare array,
// an object with a data array, null, an empty body, and the literal [] token
// either bare or as a JSON string.
func decodeFeed(body []byte) ([]interface{}, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || isEmptyToken(trimmed) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w: %s", err, snippet(trimmed))
	}
	if dec.More() {
		return nil, fmt.Errorf("invalid JSON response: trailing data: %s", snippet(trimmed))
	}

	switch v := doc.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		return v, nil
	case string:
		if isEmptyToken([]byte(strings.TrimSpace(v))) {
			return nil, nil
		}
	case map[string]interface{}:
		data, ok := v["data"]
		if !ok {
			break
		}
		switch d := data.(type) {
		case nil:
			return nil, nil
		case []interface{}:
			return d, nil
		case string:
			if isEmptyToken([]byte(strings.TrimSpace(d))) {
				return nil, nil
			}
		}
	}
	return nil, fmt.Errorf("unexpected response shape: %s", snippet(trimmed))
}

func isEmptyToken(b []byte) bool {
	s := string(b)
	return s == "[]" || s == `"[]"`
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
