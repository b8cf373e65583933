package producer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// TokenHeader carries the server token out-of-band; deployment constant
// shared with the gateway.
const TokenHeader = "X-Server-Token"

var ErrUnauthorized = errors.New("server token rejected")

// ElementError mirrors the gateway's per-element outcome entry.
type ElementError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// Result is the gateway's outcome document for one flush. Producers
// treat Processed == 0 as failure and resend; fire-and-forget otherwise.
type Result struct {
	Total     int            `json:"total"`
	Processed int            `json:"processed"`
	Errors    []ElementError `json:"errors"`
}

// Client performs the outbound request carrying a batch and its auth
// metadata.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Send flushes the queue in the given encoding and returns the gateway's
// outcome document. The queue is not reset; callers decide based on the
// result whether to resend or drop.
func (c *Client) Send(ctx context.Context, q *Queue, enc Encoding) (*Result, error) {
	body, err := q.Encode(enc)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/events", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", enc.ContentType())
	req.Header.Set(TokenHeader, c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send batch: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var result Result
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		return &result, nil
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	default:
		var doc struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&doc); err == nil && doc.Error != "" {
			return nil, fmt.Errorf("gateway rejected batch (%d): %s", resp.StatusCode, doc.Error)
		}
		return nil, fmt.Errorf("gateway rejected batch with status %d", resp.StatusCode)
	}
}
