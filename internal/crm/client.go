package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrorKind is the closed classification for CRM call failures. Callers branch
// on the kind, never on message text.
type ErrorKind string

const (
	KindNotConfigured  ErrorKind = "not_configured"
	KindTimeout        ErrorKind = "timeout"
	KindNetwork        ErrorKind = "network"
	KindRemoteRejected ErrorKind = "remote_rejected"
)

type Error struct {
	Kind    ErrorKind
	Status  int // HTTP status for remote rejections, zero otherwise
	Message string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("crm: %s (HTTP %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("crm: %s: %s", e.Kind, e.Message)
}

// KindOf extracts the error kind, or empty string for non-CRM errors.
func KindOf(err error) ErrorKind {
	var crmErr *Error
	if errors.As(err, &crmErr) {
		return crmErr.Kind
	}
	return ""
}

type InvoiceLine struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Qty        int    `json:"qty"`
	TotalCents int64  `json:"total_cents"`
}

// Invoice is the CRM wire shape for both sales and reversing (refund/exchange)
// invoices; reversals carry negative amounts and negated line quantities.
type Invoice struct {
	ID            string        `json:"id,omitempty"`
	InvoiceNumber string        `json:"invoice_number,omitempty"`
	Date          string        `json:"date"`
	Time          string        `json:"time"`
	AmountCents   int64         `json:"amount_cents"`
	TaxCents      int64         `json:"tax_cents"`
	Status        string        `json:"status,omitempty"`
	CustomerID    string        `json:"customer_id,omitempty"`
	CustomerName  string        `json:"customer_name,omitempty"`
	CustomerPhone string        `json:"customer_phone,omitempty"`
	CustomerEmail string        `json:"customer_email,omitempty"`
	PaymentMethod string        `json:"payment_method,omitempty"`
	Cashier       string        `json:"cashier,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	Lines         []InvoiceLine `json:"lines"`
}

// SearchQuery narrows the remote invoice search. Free-text fields must be
// passed through Sanitize before reaching the wire.
type SearchQuery struct {
	Status        string
	InvoiceNumber string
	CustomerID    string
	CustomerName  string
	Phone         string
	Email         string
	DateFrom      string
	DateTo        string
}

type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

func NewClient(baseURL string, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// Configured reports whether the client has credentials. Unconfigured clients
// fail fast with KindNotConfigured instead of issuing requests.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

// Sanitize strips characters that must never reach the remote query string:
// quotes, backslashes and semicolons.
func Sanitize(input string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '"', '\'', '\\', ';':
			return -1
		}
		return r
	}, strings.TrimSpace(input))
}

func (c *Client) SearchInvoices(ctx context.Context, query SearchQuery) ([]Invoice, error) {
	if !c.Configured() {
		return nil, &Error{Kind: KindNotConfigured, Message: "CRM credentials are not configured"}
	}

	params := url.Values{}
	if query.Status != "" {
		params.Set("status", query.Status)
	}
	setSanitized(params, "invoice_number", query.InvoiceNumber)
	setSanitized(params, "customer_id", query.CustomerID)
	setSanitized(params, "customer_name", query.CustomerName)
	setSanitized(params, "phone", query.Phone)
	setSanitized(params, "email", query.Email)
	if query.DateFrom != "" {
		params.Set("date_from", query.DateFrom)
	}
	if query.DateTo != "" {
		params.Set("date_to", query.DateTo)
	}

	endpoint := c.baseURL + "/api/external/invoices"
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Invoices []Invoice `json:"invoices"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &Error{Kind: KindNetwork, Message: fmt.Sprintf("malformed search response: %v", err)}
	}
	return payload.Invoices, nil
}

func (c *Client) CreateInvoice(ctx context.Context, invoice Invoice) (Invoice, error) {
	if !c.Configured() {
		return Invoice{}, &Error{Kind: KindNotConfigured, Message: "CRM credentials are not configured"}
	}

	payload, err := json.Marshal(invoice)
	if err != nil {
		return Invoice{}, &Error{Kind: KindNetwork, Message: fmt.Sprintf("encode invoice: %v", err)}
	}

	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/api/external/invoices", payload)
	if err != nil {
		return Invoice{}, err
	}

	var created Invoice
	if err := json.Unmarshal(body, &created); err != nil {
		return Invoice{}, &Error{Kind: KindNetwork, Message: fmt.Sprintf("malformed create response: %v", err)}
	}
	return created, nil
}

func (c *Client) do(ctx context.Context, method string, endpoint string, payload []byte) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, endpoint, bodyReader)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: err.Error()}
	}
	req.Header.Set("X-API-Key", c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, &Error{Kind: KindTimeout, Message: fmt.Sprintf("request exceeded %s", c.timeout)}
		}
		return nil, &Error{Kind: KindNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Kind:    KindRemoteRejected,
			Status:  resp.StatusCode,
			Message: strings.TrimSpace(string(body)),
		}
	}
	return body, nil
}

func setSanitized(params url.Values, key string, value string) {
	cleaned := Sanitize(value)
	if cleaned != "" {
		params.Set(key, cleaned)
	}
}
