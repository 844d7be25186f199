package quickbooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"ecoquote/internal/config"

	"golang.org/x/oauth2"
)

const (
	AuthURL  = "https://appcenter.intuit.com/connect/oauth2"
	TokenURL = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"

	minorVersion = "65"
)

// UpstreamError is a non-2xx answer from the accounting API
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("quickbooks: %d: %s", e.StatusCode, e.Message)
}

// Client talks to the QuickBooks Online accounting API for one company
type Client struct {
	httpClient *http.Client
	baseURL    string
	realmID    string
}

// New builds a client whose access tokens are refreshed from the configured refresh token
func New(ctx context.Context, cfg config.QuickBooksConfig) *Client {
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  AuthURL,
			TokenURL: TokenURL,
		},
		Scopes: []string{"com.intuit.quickbooks.accounting"},
	}
	tokenSource := oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	return NewWithHTTPClient(cfg.BaseURL, cfg.RealmID, oauth2.NewClient(ctx, tokenSource))
}

// NewWithHTTPClient builds a client around an already authorized HTTP client
func NewWithHTTPClient(baseURL, realmID string, httpClient *http.Client) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		realmID:    realmID,
	}
}

type Ref struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

type EmailAddress struct {
	Address string `json:"Address"`
}

type Customer struct {
	ID               string        `json:"Id,omitempty"`
	DisplayName      string        `json:"DisplayName"`
	CompanyName      string        `json:"CompanyName,omitempty"`
	PrimaryEmailAddr *EmailAddress `json:"PrimaryEmailAddr,omitempty"`
}

type SalesItemLineDetail struct {
	ItemRef   Ref     `json:"ItemRef"`
	Qty       float64 `json:"Qty"`
	UnitPrice float64 `json:"UnitPrice"`
}

type Line struct {
	DetailType            string               `json:"DetailType"`
	Description           string               `json:"Description,omitempty"`
	Amount                float64              `json:"Amount,omitempty"`
	SalesItemLineDetail   *SalesItemLineDetail `json:"SalesItemLineDetail,omitempty"`
	DescriptionLineDetail *struct{}            `json:"DescriptionLineDetail,omitempty"`
}

type Estimate struct {
	ID          string  `json:"Id,omitempty"`
	DocNumber   string  `json:"DocNumber,omitempty"`
	CustomerRef Ref     `json:"CustomerRef"`
	Line        []Line  `json:"Line"`
	PrivateNote string  `json:"PrivateNote,omitempty"`
	TotalAmt    float64 `json:"TotalAmt,omitempty"`
}

// LineItem is one permit to put on an estimate. An empty ItemID produces a
// description-only line.
type LineItem struct {
	Description string
	ItemID      string
	Amount      float64
}

// EstimateInput describes the estimate to create for a quotation
type EstimateInput struct {
	CustomerName  string
	CustomerEmail string
	CompanyName   string
	Memo          string
	Lines         []LineItem
}

// SyncEstimate finds or creates the customer and creates an estimate for them
func (c *Client) SyncEstimate(ctx context.Context, in EstimateInput) (Estimate, error) {
	displayName := in.CompanyName
	if displayName == "" {
		displayName = in.CustomerName
	}
	customer, err := c.FindOrCreateCustomer(ctx, Customer{
		DisplayName:      displayName,
		CompanyName:      in.CompanyName,
		PrimaryEmailAddr: &EmailAddress{Address: in.CustomerEmail},
	})
	if err != nil {
		return Estimate{}, fmt.Errorf("customer: %w", err)
	}
	return c.CreateEstimate(ctx, customer.ID, in.Lines, in.Memo)
}

// FindOrCreateCustomer looks a customer up by display name and creates it when absent
func (c *Client) FindOrCreateCustomer(ctx context.Context, customer Customer) (Customer, error) {
	query := fmt.Sprintf("select * from Customer where DisplayName = '%s'", escapeQuery(customer.DisplayName))

	var found struct {
		QueryResponse struct {
			Customer []Customer `json:"Customer"`
		} `json:"QueryResponse"`
	}
	if err := c.do(ctx, http.MethodGet, "/query?query="+url.QueryEscape(query), nil, &found); err != nil {
		return Customer{}, err
	}
	if len(found.QueryResponse.Customer) > 0 {
		return found.QueryResponse.Customer[0], nil
	}

	var created struct {
		Customer Customer `json:"Customer"`
	}
	if err := c.do(ctx, http.MethodPost, "/customer", customer, &created); err != nil {
		return Customer{}, err
	}
	return created.Customer, nil
}

// CreateEstimate creates an estimate with one line per item
func (c *Client) CreateEstimate(ctx context.Context, customerID string, items []LineItem, memo string) (Estimate, error) {
	estimate := Estimate{
		CustomerRef: Ref{Value: customerID},
		PrivateNote: memo,
		Line:        make([]Line, 0, len(items)),
	}
	for _, item := range items {
		if item.ItemID == "" {
			estimate.Line = append(estimate.Line, Line{
				DetailType:            "DescriptionOnly",
				Description:           item.Description,
				DescriptionLineDetail: &struct{}{},
			})
			continue
		}
		estimate.Line = append(estimate.Line, Line{
			DetailType:  "SalesItemLineDetail",
			Description: item.Description,
			Amount:      item.Amount,
			SalesItemLineDetail: &SalesItemLineDetail{
				ItemRef:   Ref{Value: item.ItemID},
				Qty:       1,
				UnitPrice: item.Amount,
			},
		})
	}

	var created struct {
		Estimate Estimate `json:"Estimate"`
	}
	if err := c.do(ctx, http.MethodPost, "/estimate", estimate, &created); err != nil {
		return Estimate{}, err
	}
	return created.Estimate, nil
}

type fault struct {
	Fault struct {
		Error []struct {
			Message string `json:"Message"`
			Detail  string `json:"Detail"`
		} `json:"Error"`
	} `json:"Fault"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	endpoint := fmt.Sprintf("%s/v3/company/%s%s", c.baseURL, c.realmID, path)
	if strings.Contains(path, "?") {
		endpoint += "&minorversion=" + minorVersion
	} else {
		endpoint += "?minorversion=" + minorVersion
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		message := strings.TrimSpace(string(bodyBytes))
		var f fault
		if json.Unmarshal(bodyBytes, &f) == nil && len(f.Fault.Error) > 0 {
			message = f.Fault.Error[0].Message
			if f.Fault.Error[0].Detail != "" {
				message += ": " + f.Fault.Error[0].Detail
			}
		}
		return &UpstreamError{StatusCode: resp.StatusCode, Message: message}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func escapeQuery(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}
