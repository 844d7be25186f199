// Package client talks to the ecoquote API through the gateway.
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

	"ecoquote/internal/model"
)

// UpstreamError is a non-2xx answer from the API
type UpstreamError struct {
	StatusCode int
	Code       string
	Message    string
	Status     model.Status
	Quotation  *model.Quotation
}

func (e *UpstreamError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

type LoginResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      model.Staff `json:"user"`
}

type SendResult struct {
	Quotation  *model.Quotation `json:"quotation"`
	ApproveURL string           `json:"approveUrl"`
	RejectURL  string           `json:"rejectUrl"`
	ExpiresAt  time.Time        `json:"expiresAt"`
}

type Verification struct {
	Action      model.Action     `json:"action"`
	QuotationID string           `json:"quotationId"`
	Quotation   *model.Quotation `json:"quotation"`
}

// Client calls the API. BaseURL points at the gateway's /api prefix.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var out LoginResult
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/staff/login", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Me(ctx context.Context) (*model.Staff, error) {
	var out model.Staff
	if err := c.do(ctx, http.MethodGet, "/staff/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListQuotations(ctx context.Context, status string, limit, offset int) ([]model.Quotation, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/quotations"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out struct {
		Quotations []model.Quotation `json:"quotations"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Quotations, nil
}

func (c *Client) GetQuotation(ctx context.Context, id string) (*model.Quotation, error) {
	var out model.Quotation
	if err := c.do(ctx, http.MethodGet, "/quotations/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SendQuotation(ctx context.Context, id string) (*SendResult, error) {
	var out SendResult
	if err := c.do(ctx, http.MethodPost, "/custom-quotations/"+url.PathEscape(id)+"/send", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VerifyToken(ctx context.Context, token string) (*Verification, error) {
	var out Verification
	path := "/custom-quotations/verify-token?token=" + url.QueryEscape(token)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SubmitResponse(ctx context.Context, token string) (model.Status, error) {
	var out struct {
		Status model.Status `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, "/custom-quotations/response", map[string]string{"token": token}, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// DownloadPDF returns the rendered quotation document
func (c *Client) DownloadPDF(ctx context.Context, id string) ([]byte, error) {
	resp, err := c.send(ctx, http.MethodGet, "/custom-quotations/"+url.PathEscape(id)+"/pdf", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// send performs a request and turns non-2xx answers into *UpstreamError
func (c *Client) send(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	upstream := &UpstreamError{StatusCode: resp.StatusCode}
	var envelope struct {
		Error     string           `json:"error"`
		Code      string           `json:"code"`
		Status    model.Status     `json:"status"`
		Quotation *model.Quotation `json:"quotation"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error != "" {
		upstream.Code = envelope.Code
		upstream.Message = envelope.Error
		upstream.Status = envelope.Status
		upstream.Quotation = envelope.Quotation
	} else {
		upstream.Message = strings.TrimSpace(string(data))
		if upstream.Message == "" {
			upstream.Message = http.StatusText(resp.StatusCode)
		}
	}
	return nil, upstream
}
