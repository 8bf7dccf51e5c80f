package http

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

	"github.com/seabucks/dealer"
	"github.com/seabucks/dealer/encoding"
)

// Client calls a remote dealer's API.
type Client struct {
	BaseURL string
	*http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client) error

// NewClient creates a client for the dealer at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid dealer URL %q", baseURL)
	}
	client := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if err := opt(client); err != nil {
			return nil, err
		}
	}
	return client, nil
}

// WithHTTPClient sets a custom underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) error {
		if httpClient == nil {
			return fmt.Errorf("nil http client")
		}
		c.Client = httpClient
		return nil
	}
}

// APIError is a non-2xx response from the dealer.
type APIError struct {
	StatusCode int
	Detail     ErrorDetail
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dealer API %d: %s: %s", e.StatusCode, e.Detail.Code, e.Detail.Message)
}

// RequestQuote asks the dealer to issue a signed quote.
func (c *Client) RequestQuote(ctx context.Context, req QuoteRequest) (*QuoteResponse, dealer.SignedQuote, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, dealer.SignedQuote{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp QuoteResponse
	if err := c.do(ctx, http.MethodPost, "/api/quote", bytes.NewReader(body), nil, &resp); err != nil {
		return nil, dealer.SignedQuote{}, err
	}

	sq, err := encoding.DecodeSignedQuote(resp.Encoded)
	if err != nil {
		return nil, dealer.SignedQuote{}, fmt.Errorf("dealer returned an undecodable quote: %w", err)
	}
	return &resp, sq, nil
}

// Rate fetches one currency's rate.
func (c *Client) Rate(ctx context.Context, currency string) (dealer.ExchangeRate, error) {
	var resp struct {
		Data dealer.ExchangeRate `json:"data"`
	}
	path := "/api/rates?currency=" + url.QueryEscape(currency)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return dealer.ExchangeRate{}, err
	}
	return resp.Data, nil
}

// Rates fetches every registered currency's rate.
func (c *Client) Rates(ctx context.Context) (map[string]dealer.ExchangeRate, error) {
	var resp struct {
		Data map[string]dealer.ExchangeRate `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/rates", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Health fetches the dealer's status.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Verify asks the dealer whether sq would settle now.
func (c *Client) Verify(ctx context.Context, sq dealer.SignedQuote) (*VerifyResponse, error) {
	encoded, err := encoding.EncodeSignedQuote(sq)
	if err != nil {
		return nil, err
	}
	var resp VerifyResponse
	header := http.Header{SignedQuoteHeader: []string{encoded}}
	if err := c.do(ctx, http.MethodPost, "/api/quote/verify", nil, header, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e ErrorResponse
		if jsonErr := json.Unmarshal(data, &e); jsonErr != nil || e.Error.Code == "" {
			e.Error = ErrorDetail{Code: dealer.ErrCodeInternal, Message: strings.TrimSpace(string(data))}
		}
		return &APIError{StatusCode: resp.StatusCode, Detail: e.Error}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
