// Package transport is the HTTP boundary between the session layer and the backend API.
//
// Requests that ask for authorization carry the stored access token as a bearer header.
// Answers that reveal the token is no longer accepted (HTTP 401 or a known invalid-token
// error payload) run the configured auth-failure handler once and return ErrUnauthorized.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
)

const maxResponseBytes = 4 << 20

// DefaultInvalidTokenMessages are the backend error messages treated as an invalid token.
var DefaultInvalidTokenMessages = []string{
	"Invalid JWT token",
	"Required request header 'auth' for method parameter type String is not present",
}

// TokenSource supplies the bearer token.
type TokenSource interface {
	Token(ctx context.Context) (string, bool)
}

// AuthFailureFunc reacts to a rejected token.
type AuthFailureFunc func(ctx context.Context)

// Options configure a Client.
type Options struct {
	BaseURL              string
	HTTPClient           *http.Client
	Timeout              time.Duration
	InvalidTokenMessages []string
	Tokens               TokenSource
	OnAuthFailure        AuthFailureFunc
	Logger               *zap.Logger
}

// Request describes one API call.
type Request struct {
	Method string
	Path   string
	Body   any
	Auth   bool
	Header http.Header
}

// Response is a fully read API answer.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("%w: empty body", ErrInvalidBody)
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	return nil
}

// Client calls the backend API.
type Client struct {
	baseURL       string
	http          *http.Client
	invalidTokens []string
	tokens        TokenSource
	onAuthFailure AuthFailureFunc
	logger        *zap.Logger
}

type errorPayload struct {
	Erros []string `json:"erros"`
}

// NewClient creates a client.
func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	msgs := opts.InvalidTokenMessages
	if len(msgs) == 0 {
		msgs = DefaultInvalidTokenMessages
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		http:          hc,
		invalidTokens: slices.Clone(msgs),
		tokens:        opts.Tokens,
		onAuthFailure: opts.OnAuthFailure,
		logger:        logger.Named("transport"),
	}
}

// Call is shorthand for Do.
func (c *Client) Call(ctx context.Context, method, path string, body any, auth bool, header http.Header) (*Response, error) {
	return c.Do(ctx, Request{Method: method, Path: path, Body: body, Auth: auth, Header: header})
}

// Do sends req. Non-2xx answers return the response together with an error.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	resp := &Response{Status: httpResp.StatusCode, Header: httpResp.Header, Body: raw}

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		return resp, nil
	}

	var payload errorPayload
	_ = json.Unmarshal(raw, &payload)

	if httpResp.StatusCode == http.StatusUnauthorized || c.isInvalidToken(payload.Erros) {
		c.logger.Info("token rejected by backend",
			zap.String("method", httpReq.Method),
			zap.String("path", req.Path),
			zap.Int("status", httpResp.StatusCode),
		)
		if c.onAuthFailure != nil {
			c.onAuthFailure(ctx)
		}
		return resp, ErrUnauthorized
	}

	return resp, &StatusError{Status: httpResp.StatusCode, Messages: payload.Erros}
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBody, err)
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+req.Path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	for k, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Auth && c.tokens != nil {
		if token, ok := c.tokens.Token(ctx); ok {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return httpReq, nil
}

func (c *Client) isInvalidToken(msgs []string) bool {
	return len(msgs) > 0 && slices.Contains(c.invalidTokens, msgs[0])
}
