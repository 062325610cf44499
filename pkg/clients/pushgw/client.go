package pushgw

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

	"frameworks/pkg/clients"
)

// ErrDelivery wraps every failure to hand a push to the gateway.
var ErrDelivery = errors.New("push delivery failed")

// APIError is a non-2xx gateway response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("push gateway returned status: %d", e.StatusCode)
	}
	return fmt.Sprintf("push gateway returned status: %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error { return ErrDelivery }

// Message is the JSON body of POST /v1/push.
type Message struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

type Client struct {
	baseURL      string
	token        string
	client       *http.Client
	httpExecutor *clients.BreakerExecutor
}

type Option func(*Client)

// DefaultBreaker is the circuit applied when no executor option is given.
func DefaultBreaker() clients.CircuitBreakerConfig {
	cfg := clients.DefaultCircuitBreakerConfig()
	cfg.Name = "push-gateway"
	cfg.Timeout = 30 * time.Second
	return cfg
}

// NewClient builds a push gateway client. Pushes are never retried; a
// circuit breaker fails fast while the gateway is down.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		token:        token,
		client:       &http.Client{Timeout: 10 * time.Second, Transport: clients.DefaultTransport()},
		httpExecutor: clients.NewBreakerExecutor(DefaultBreaker()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.client = httpClient
		}
	}
}

// WithBreaker replaces the default circuit breaker configuration.
func WithBreaker(cfg clients.CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.httpExecutor = clients.NewBreakerExecutor(cfg)
	}
}

// Send delivers one push to target. All failures match ErrDelivery.
func (c *Client) Send(ctx context.Context, target, title, body string) error {
	return c.SendMessage(ctx, Message{To: target, Title: title, Body: body})
}

// SendMessage delivers msg, including its data payload.
func (c *Client) SendMessage(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrDelivery, err)
	}

	resp, err := c.httpExecutor.Execute(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/push", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		return c.client.Do(req)
	})
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
