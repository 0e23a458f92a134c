package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vibast-solutions/ms-go-reconciler/config"
)

// Client talks to the payment gateway RPC API. Every call returns typed
// results; non-2xx responses surface as *APIError so failures can be
// classified at the call site instead of aborting a batch.
type Client struct {
	cfg    config.GatewayConfig
	client *http.Client
}

func NewClient(cfg config.GatewayConfig) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// ListPayments pages through payments updated at or after startAt, ordered
// by update time ascending. Pass the previous page's NextToken to continue.
func (c *Client) ListPayments(ctx context.Context, nextToken string, startAt time.Time) (*PaymentPage, error) {
	values := url.Values{}
	values.Set("sortBy", "updatedAt")
	values.Set("sortOrder", "ascending")
	values.Set("startAt", strconv.FormatInt(startAt.Unix(), 10))
	if nextToken != "" {
		values.Set("nextToken", nextToken)
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/payments?"+values.Encode(), nil, "")
	if err != nil {
		return nil, err
	}

	page := &PaymentPage{}
	if err := json.Unmarshal(body, page); err != nil {
		return nil, err
	}

	return page, nil
}

// GetPayment fetches a single payment. A gateway 404 is reported as
// (nil, nil): no payment exists for that order.
func (c *Client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/payments/"+url.PathEscape(id), nil, "")
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	payment := &Payment{}
	if err := json.Unmarshal(body, payment); err != nil {
		return nil, err
	}

	return payment, nil
}

func (c *Client) GetPaymentOperation(ctx context.Context, id, txid string) (*Operation, error) {
	path := "/payments/" + url.PathEscape(id) + "/operations/" + url.PathEscape(txid)
	body, err := c.doRequest(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}

	operation := &Operation{}
	if err := json.Unmarshal(body, operation); err != nil {
		return nil, err
	}

	return operation, nil
}

func (c *Client) ListPaymentOperations(ctx context.Context, id, nextToken string) (*OperationPage, error) {
	path := "/payments/" + url.PathEscape(id) + "/operations"
	if nextToken != "" {
		path += "?nextToken=" + url.QueryEscape(nextToken)
	}

	body, err := c.doRequest(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}

	page := &OperationPage{}
	if err := json.Unmarshal(body, page); err != nil {
		return nil, err
	}

	return page, nil
}

// SettlePayment asks the gateway to transfer amount of token to the
// merchant. The call is not idempotent on the gateway side, so a fresh
// idempotency key is attached to let it reject accidental replays.
func (c *Client) SettlePayment(ctx context.Context, id, chain, token, amount string) (*Operation, error) {
	payload := map[string]string{
		"amount": amount,
		"token":  token,
	}

	path := "/payments/" + url.PathEscape(id) + "/settle?chain=" + url.QueryEscape(chain)
	body, err := c.doRequest(ctx, http.MethodPost, path, payload, uuid.NewString())
	if err != nil {
		return nil, err
	}

	operation := &Operation{}
	if err := json.Unmarshal(body, operation); err != nil {
		return nil, err
	}

	return operation, nil
}

// RefundPayment asks the gateway to return the whole remaining balance of
// token to the payer.
func (c *Client) RefundPayment(ctx context.Context, id, chain, token string) (*Operation, error) {
	payload := map[string]string{
		"token": token,
	}

	path := "/payments/" + url.PathEscape(id) + "/refund?chain=" + url.QueryEscape(chain)
	body, err := c.doRequest(ctx, http.MethodPost, path, payload, uuid.NewString())
	if err != nil {
		return nil, err
	}

	operation := &Operation{}
	if err := json.Unmarshal(body, operation); err != nil {
		return nil, err
	}

	return operation, nil
}

// ListTokens returns the tokens the gateway settles for the given store
// currency. Pass an empty currency for the full list.
func (c *Client) ListTokens(ctx context.Context, currency string) ([]Token, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/tokens", nil, "")
	if err != nil {
		return nil, err
	}

	var tokens []Token
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, err
	}
	if currency == "" {
		return tokens, nil
	}

	filtered := make([]Token, 0, len(tokens))
	for _, token := range tokens {
		if token.Currency == currency {
			filtered = append(filtered, token)
		}
	}

	return filtered, nil
}

func (c *Client) CreateCheckoutURL(ctx context.Context, input *CreateCheckoutURLInput) (*CheckoutURL, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/checkout", input, "")
	if err != nil {
		return nil, err
	}

	checkout := &CheckoutURL{}
	if err := json.Unmarshal(body, checkout); err != nil {
		return nil, err
	}
	if strings.TrimSpace(checkout.URL) == "" {
		return nil, errors.New("gateway checkout url missing")
	}

	return checkout, nil
}

// ValidateCheckout verifies the HMAC parameters of a checkout return
// redirect. HmacInput arrives base64-encoded from the redirect; it is
// decoded before submission and its pipe-separated fields are returned.
func (c *Client) ValidateCheckout(ctx context.Context, input *ValidateCheckoutInput) (*CheckoutValidation, error) {
	decodedInput, err := base64.StdEncoding.DecodeString(input.HmacInput)
	if err != nil {
		return nil, errors.New("hmac input is not valid base64")
	}

	payload := &ValidateCheckoutInput{
		HmacAlg:   input.HmacAlg,
		HmacInput: string(decodedInput),
		HmacKeyID: input.HmacKeyID,
		HmacValue: input.HmacValue,
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/checkout/validate", payload, "")
	if err != nil {
		return nil, err
	}

	var response struct {
		Valid bool `json:"valid"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, err
	}

	return &CheckoutValidation{
		Valid:       response.Valid,
		InputFields: strings.Split(string(decodedInput), "|"),
	}, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, payload interface{}, idempotencyKey string) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.cfg.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Path: path, Body: string(body)}
	}

	return body, nil
}

func isNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
