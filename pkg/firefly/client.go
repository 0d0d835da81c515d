// Package firefly is a small Firefly III REST client covering the calls the
// bot needs: listing accounts and posting balance corrections.
package firefly

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

	"github.com/shopspring/decimal"
)

// Account is a ledger account as the bot sees it.
type Account struct {
	ID             int64
	Name           string
	CurrentBalance decimal.Decimal
	Currency       string
}

// Client calls the Firefly III API with a personal access token.
type Client struct {
	baseURL     string
	token       string
	description string
	httpClient  *http.Client
	now         func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithDescription sets the description of posted balance corrections.
func WithDescription(d string) Option {
	return func(c *Client) {
		if d != "" {
			c.description = d
		}
	}
}

// New returns a client for the Firefly instance at baseURL.
func New(baseURL, token string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		description: "Balance update",
		httpClient:  &http.Client{Timeout: timeout},
		now:         time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type accountData struct {
	ID         string `json:"id"`
	Attributes struct {
		Name           string `json:"name"`
		CurrentBalance string `json:"current_balance"`
		CurrencyCode   string `json:"currency_code"`
	} `json:"attributes"`
}

type accountList struct {
	Data []accountData `json:"data"`
	Meta struct {
		Pagination struct {
			CurrentPage int `json:"current_page"`
			TotalPages  int `json:"total_pages"`
		} `json:"pagination"`
	} `json:"meta"`
}

type accountSingle struct {
	Data accountData `json:"data"`
}

type transactionSplit struct {
	Type          string `json:"type"`
	Date          string `json:"date"`
	Amount        string `json:"amount"`
	Description   string `json:"description"`
	SourceID      string `json:"source_id,omitempty"`
	DestinationID string `json:"destination_id,omitempty"`
}

type transactionStore struct {
	Transactions []transactionSplit `json:"transactions"`
}

type apiError struct {
	Message string `json:"message"`
}

func (d accountData) account() (Account, error) {
	id, err := strconv.ParseInt(d.ID, 10, 64)
	if err != nil {
		return Account{}, fmt.Errorf("account id %q: %w", d.ID, err)
	}
	bal := decimal.Zero
	if d.Attributes.CurrentBalance != "" {
		if bal, err = decimal.NewFromString(d.Attributes.CurrentBalance); err != nil {
			return Account{}, fmt.Errorf("account %d balance: %w", id, err)
		}
	}
	return Account{ID: id, Name: d.Attributes.Name, CurrentBalance: bal, Currency: d.Attributes.CurrencyCode}, nil
}

// ListAccounts returns every account of the given type ("asset", "liability",
// ...), following pagination.
func (c *Client) ListAccounts(ctx context.Context, accountType string) ([]Account, error) {
	var out []Account
	for page := 1; ; page++ {
		q := url.Values{"page": {strconv.Itoa(page)}}
		if accountType != "" {
			q.Set("type", accountType)
		}
		var list accountList
		if err := c.do(ctx, "list accounts", http.MethodGet, "/api/v1/accounts?"+q.Encode(), nil, &list); err != nil {
			return nil, err
		}
		for _, d := range list.Data {
			a, err := d.account()
			if err != nil {
				return nil, &Error{Op: "list accounts", Reason: "malformed response", Err: err}
			}
			out = append(out, a)
		}
		if page >= list.Meta.Pagination.TotalPages {
			return out, nil
		}
	}
}

// GetAccount loads a single account.
func (c *Client) GetAccount(ctx context.Context, id int64) (Account, error) {
	var single accountSingle
	if err := c.do(ctx, "get account", http.MethodGet, "/api/v1/accounts/"+strconv.FormatInt(id, 10), nil, &single); err != nil {
		return Account{}, err
	}
	a, err := single.Data.account()
	if err != nil {
		return Account{}, &Error{Op: "get account", Reason: "malformed response", Err: err}
	}
	return a, nil
}

// ApplyBalance brings account id to the observed balance. The difference is
// rounded to cents; a positive one is posted as a deposit into the account,
// a negative one as a withdrawal from it, and zero posts nothing. It returns
// the signed difference.
func (c *Client) ApplyBalance(ctx context.Context, id int64, observed decimal.Decimal) (decimal.Decimal, error) {
	acct, err := c.GetAccount(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	diff := observed.Sub(acct.CurrentBalance).Round(2)
	if diff.IsZero() {
		return decimal.Zero, nil
	}
	split := transactionSplit{
		Type:        "deposit",
		Date:        c.now().Format(time.RFC3339),
		Amount:      diff.Abs().StringFixed(2),
		Description: c.description,
	}
	ref := strconv.FormatInt(id, 10)
	if diff.IsNegative() {
		split.Type = "withdrawal"
		split.SourceID = ref
	} else {
		split.DestinationID = ref
	}
	body := transactionStore{Transactions: []transactionSplit{split}}
	if err := c.do(ctx, "store transaction", http.MethodPost, "/api/v1/transactions", body, nil); err != nil {
		return decimal.Zero, err
	}
	return diff, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("firefly %s: encode: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &Error{Op: op, Reason: err.Error(), Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.api+json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: op, Reason: err.Error(), Err: fmt.Errorf("%w: %v", ErrUnreachable, err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Op: op, Status: resp.StatusCode, Reason: "read body: " + err.Error(), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason := strings.TrimSpace(string(raw))
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			reason = apiErr.Message
		}
		if reason == "" {
			reason = http.StatusText(resp.StatusCode)
		}
		return &Error{Op: op, Status: resp.StatusCode, Reason: reason}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Op: op, Status: resp.StatusCode, Reason: "malformed response", Err: err}
	}
	return nil
}
