package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"clearance-svc/circuitbreaker"

	"go.uber.org/zap"
)

// CheckoutSession is the processor's record of a hosted checkout. Its
// payment_status is the only trusted signal that money was captured.
type CheckoutSession struct {
	ID            string            `json:"id"`
	PaymentStatus string            `json:"payment_status"` // paid, unpaid, no_payment_required
	PaymentIntent string            `json:"payment_intent"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

type CreateSessionParams struct {
	Currency           string
	UnitAmount         int64
	ProductName        string
	ProductDescription string
	SuccessURL         string
	CancelURL          string
	Metadata           map[string]string
}

// APIError carries the provider-supplied message for a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stripe: %s (status %d)", e.Message, e.StatusCode)
}

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *zap.Logger
}

func NewClient(logger *zap.Logger) *Client {
	return &Client{
		apiKey:  os.Getenv("STRIPE_SECRET_KEY"),
		baseURL: getEnv("STRIPE_API_URL", "https://api.stripe.com"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		breaker: circuitbreaker.NewCircuitBreaker(5, 30*time.Second),
		logger:  logger,
	}
}

// CreateSession opens a hosted checkout with one card line item and metadata
// binding the session back to the shipment.
func (c *Client) CreateSession(ctx context.Context, params CreateSessionParams) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("payment_method_types[]", "card")
	form.Set("line_items[0][price_data][currency]", params.Currency)
	form.Set("line_items[0][price_data][product_data][name]", params.ProductName)
	form.Set("line_items[0][price_data][product_data][description]", params.ProductDescription)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(params.UnitAmount, 10))
	form.Set("line_items[0][quantity]", "1")
	form.Set("mode", "payment")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	for _, key := range sortedKeys(params.Metadata) {
		form.Set(fmt.Sprintf("metadata[%s]", key), params.Metadata[key])
	}

	var session CheckoutSession
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		return c.do(req, &session)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Checkout session created", zap.String("session_id", session.ID))
	return &session, nil
}

// RetrieveSession re-fetches a session by id. Callers must rely on the
// returned payment_status rather than the redirect that carried the id.
func (c *Client) RetrieveSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	var session CheckoutSession
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.baseURL+"/v1/checkout/sessions/"+url.PathEscape(sessionID), nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		return c.do(req, &session)
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) do(req *http.Request, out *CheckoutSession) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("stripe request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		message := "failed to create checkout session"
		if err := json.NewDecoder(resp.Body).Decode(&errBody); err == nil && errBody.Error.Message != "" {
			message = errBody.Error.Message
		}
		return &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode stripe response: %w", err)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
