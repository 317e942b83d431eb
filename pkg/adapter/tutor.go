package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tolerancia/pkg/model"
)

// Tutor is the client side of the AI endpoints
type Tutor interface {
	Chat(ctx context.Context, req *model.ChatRequest) (*model.ChatResponse, error)
	Generate(ctx context.Context, phrase string) (*model.GenerateResponse, error)
	Quota(ctx context.Context, feature model.Feature) (*model.QuotaView, error)
}

// TutorClient calls the tutor HTTP API with a bearer token
type TutorClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type TutorClientOption func(*TutorClient)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) TutorClientOption {
	return func(t *TutorClient) {
		t.httpClient = c
	}
}

// NewTutorClient creates a client for the server at baseURL
func NewTutorClient(baseURL, token string, opts ...TutorClientOption) *TutorClient {
	c := &TutorClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *TutorClient) Chat(ctx context.Context, req *model.ChatRequest) (*model.ChatResponse, error) {
	var resp model.ChatResponse
	if err := c.do(ctx, http.MethodPost, "/chat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *TutorClient) Generate(ctx context.Context, phrase string) (*model.GenerateResponse, error) {
	var resp model.GenerateResponse
	if err := c.do(ctx, http.MethodPost, "/generate", &model.GenerateRequest{Phrase: phrase}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *TutorClient) Quota(ctx context.Context, feature model.Feature) (*model.QuotaView, error) {
	var resp model.QuotaResponse
	path := "/quota?feature=" + url.QueryEscape(string(feature))
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.RateLimit, nil
}

func (c *TutorClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return goerr.Wrap(err, "failed to marshal request body")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return goerr.Wrap(err, "failed to create request", goerr.V("path", path))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "failed to send request", goerr.V("path", path))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return goerr.Wrap(err, "failed to read response body", goerr.V("path", path))
	}

	if resp.StatusCode != http.StatusOK {
		return decodeErrorResponse(resp, raw, path)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return goerr.Wrap(err, "failed to decode response body", goerr.V("path", path))
	}
	return nil
}

func decodeErrorResponse(resp *http.Response, raw []byte, path string) error {
	var body model.ErrorResponse
	_ = json.Unmarshal(raw, &body)

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		qe := &model.QuotaExceededError{
			Message: body.Error,
			Quota:   model.QuotaView{Limit: body.Limit},
		}
		if body.ResetAt != nil {
			qe.Quota.ResetAt = *body.ResetAt
		}
		if qe.Quota.Limit == 0 {
			if v := resp.Header.Get("X-RateLimit-Limit"); v != "" {
				if limit, err := strconv.Atoi(v); err == nil {
					qe.Quota.Limit = limit
				}
			}
		}
		return goerr.Wrap(qe, "quota exceeded", goerr.V("path", path), goerr.T(model.ErrTagQuotaExceeded))

	case http.StatusUnauthorized:
		return goerr.New("unauthorized", goerr.V("path", path), goerr.V("error", body.Error), goerr.T(model.ErrTagUnauthorized))

	case http.StatusBadRequest:
		return goerr.New("invalid request", goerr.V("path", path), goerr.V("error", body.Error), goerr.T(model.ErrTagValidation))

	default:
		return goerr.New("unexpected response status",
			goerr.V("path", path),
			goerr.V("status", resp.StatusCode),
			goerr.V("error", body.Error))
	}
}
