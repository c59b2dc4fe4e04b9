// Package rest talks to the call record endpoints of the relay server.
package rest

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

	"github.com/YinkaFoster/fostertours-sub001/internal/core/domain"
)

// Client implements port.CallHistory for one authenticated user.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Create(ctx context.Context, receiver domain.UserID, callType domain.CallType) (domain.CallRecord, error) {
	body := map[string]string{"receiver_id": receiver.String(), "call_type": string(callType)}
	var out struct {
		Call domain.CallRecord `json:"call"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/calls/initiate", body, &out); err != nil {
		return domain.CallRecord{}, err
	}
	return out.Call, nil
}

func (c *Client) Answer(ctx context.Context, id domain.CallID) error {
	return c.do(ctx, http.MethodPost, "/api/calls/"+url.PathEscape(id.String())+"/answer", nil, nil)
}

func (c *Client) Reject(ctx context.Context, id domain.CallID) error {
	return c.do(ctx, http.MethodPost, "/api/calls/"+url.PathEscape(id.String())+"/reject", nil, nil)
}

func (c *Client) End(ctx context.Context, id domain.CallID) error {
	return c.do(ctx, http.MethodPost, "/api/calls/"+url.PathEscape(id.String())+"/end", nil, nil)
}

func (c *Client) List(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	path := "/api/calls/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Calls []domain.HistoryEntry `json:"calls"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Calls, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		return fmt.Errorf("%s %s: %w (%d %s)", method, path, sentinelFor(resp.StatusCode), resp.StatusCode, e.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func sentinelFor(status int) error {
	switch status {
	case http.StatusBadRequest:
		return domain.ErrBadRequest
	case http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case http.StatusForbidden:
		return domain.ErrForbidden
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrIllegalTransition
	default:
		return domain.ErrHistoryPersistence
	}
}
