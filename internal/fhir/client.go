package fhir

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

// maxResponseBody caps how much of a response is kept for logging.
const maxResponseBody = 1 << 20

// Submission is the outcome of one create request that reached the server.
// A non-201 answer is a Submission with Created false, not an error.
type Submission struct {
	Created    bool
	ID         string
	StatusCode int
	Body       string
}

// TransportError means the request never got an HTTP answer: connection
// refused, DNS failure, timeout or cancellation.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client creates resources on a FHIR server with one POST per resource.
// It does not retry.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds each request. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

// WithAPIKey sends key in the X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// NewClient returns a Client posting to baseURL + "/" + resource type.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid FHIR base URL %q", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the server root the client posts to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SubmitPatient creates p and returns the server-assigned id on success.
func (c *Client) SubmitPatient(ctx context.Context, p Patient) (Submission, error) {
	return c.create(ctx, TypePatient, p)
}

// SubmitObservation creates o.
func (c *Client) SubmitObservation(ctx context.Context, o Observation) (Submission, error) {
	return c.create(ctx, TypeObservation, o)
}

func (c *Client) create(ctx context.Context, resourceType string, resource any) (Submission, error) {
	body, err := json.Marshal(resource)
	if err != nil {
		return Submission{}, fmt.Errorf("encode %s: %w", resourceType, err)
	}

	endpoint := c.baseURL + "/" + resourceType
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Submission{}, fmt.Errorf("build %s request: %w", resourceType, err)
	}
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set("Accept", ContentType)
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Submission{}, &TransportError{Method: req.Method, URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return Submission{}, &TransportError{Method: req.Method, URL: endpoint, Err: err}
	}

	sub := Submission{
		StatusCode: resp.StatusCode,
		Body:       string(raw),
	}
	if resp.StatusCode != http.StatusCreated {
		return sub, nil
	}

	sub.Created = true
	sub.ID = resourceID(raw, resp.Header.Get("Location"), resourceType)
	return sub, nil
}

// resourceID reads the id from the response body, falling back to the
// Location header ("{base}/{type}/{id}/_history/{vid}").
func resourceID(body []byte, location, resourceType string) string {
	var hdr ResourceHeader
	if err := json.Unmarshal(body, &hdr); err == nil && hdr.ID != "" {
		return hdr.ID
	}
	if location == "" {
		return ""
	}

	parts := strings.Split(strings.Trim(location, "/"), "/")
	for i := len(parts) - 2; i >= 0; i-- {
		if parts[i] == resourceType {
			return parts[i+1]
		}
	}
	return ""
}
