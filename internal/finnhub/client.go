package finnhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/valuescreen/internal/models"
)

const (
	// DefaultBaseURL is the base URL for the Finnhub API.
	DefaultBaseURL = "https://finnhub.io/api/v1"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second
)

// Operation names passed to the limiter and carried on ProviderError.
const (
	OpQuote        = "quote"
	OpProfile      = "profile"
	OpFundamentals = "fundamentals"
	OpExchangeRate = "exchange_rate"
	OpListSymbols  = "list_symbols"
)

// Acquirer gates outbound calls. *ratelimit.Limiter satisfies it.
type Acquirer interface {
	Acquire(ctx context.Context, operation string) error
}

// Client is a Finnhub API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    Acquirer
	retry      *RetryPolicy
	validate   *validator.Validate
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(policy *RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retry = policy
	}
}

// NewClient creates a new Finnhub API client. The limiter is shared by every
// caller in the process and is consulted before each HTTP attempt.
func NewClient(apiKey string, limiter Acquirer, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter:  limiter,
		retry:    NewRetryPolicy(),
		validate: validator.New(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = arbor.NewLogger()
	}

	return c
}

// get performs a rate-limited GET with retries and decodes the JSON body
// into result. Failures are returned as *models.ProviderError.
func (c *Client) get(ctx context.Context, op, symbol, path string, params url.Values, result interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("token", c.apiKey)
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	var body []byte
	status, err := c.retry.ExecuteWithRetry(ctx, c.logger, func() (int, error) {
		if c.limiter != nil {
			if err := c.limiter.Acquire(ctx, op); err != nil {
				return 0, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return 0, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		c.logger.Debug().
			Str("endpoint", path).
			Str("symbol", symbol).
			Msg("Finnhub API request")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return 0, fmt.Errorf("failed to execute request: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return resp.StatusCode, &APIError{
				StatusCode: resp.StatusCode,
				Message:    strings.TrimSpace(string(data)),
				Endpoint:   path,
			}
		}

		body = data
		return resp.StatusCode, nil
	})
	if err != nil {
		if status == http.StatusOK {
			status = 0
		}
		return &models.ProviderError{Op: op, Symbol: symbol, StatusCode: status, Err: err}
	}

	if err := json.Unmarshal(body, result); err != nil {
		return &models.ProviderError{Op: op, Symbol: symbol, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	return nil
}

// GetQuote retrieves the current quote for a symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	var result Quote
	if err := c.get(ctx, OpQuote, symbol, "/quote", url.Values{"symbol": {symbol}}, &result); err != nil {
		return nil, err
	}
	if err := c.validate.Struct(&result); err != nil {
		return nil, &models.ProviderError{Op: OpQuote, Symbol: symbol, Err: fmt.Errorf("invalid quote: %w", err)}
	}
	return &result, nil
}

// GetProfile retrieves the company profile for a symbol. Unknown symbols
// return an empty profile, not an error.
func (c *Client) GetProfile(ctx context.Context, symbol string) (*Profile, error) {
	var result Profile
	if err := c.get(ctx, OpProfile, symbol, "/stock/profile2", url.Values{"symbol": {symbol}}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetFundamentals retrieves the full metric set for a symbol.
func (c *Client) GetFundamentals(ctx context.Context, symbol string) (*MetricResponse, error) {
	params := url.Values{
		"symbol": {symbol},
		"metric": {"all"},
	}
	var result MetricResponse
	if err := c.get(ctx, OpFundamentals, symbol, "/stock/metric", params, &result); err != nil {
		return nil, err
	}
	if result.Metric == nil {
		result.Metric = map[string]interface{}{}
	}
	return &result, nil
}

// GetExchangeRate returns the multiplier converting one unit of from into to.
// A missing or non-positive rate is an error.
func (c *Client) GetExchangeRate(ctx context.Context, from, to string) (float64, error) {
	pair := strings.ToUpper(from) + strings.ToUpper(to)

	var result ForexRate
	if err := c.get(ctx, OpExchangeRate, pair, "/forex/exchange", url.Values{"symbol": {pair}}, &result); err != nil {
		return 0, err
	}
	if err := c.validate.Struct(&result); err != nil {
		return 0, &models.ProviderError{Op: OpExchangeRate, Symbol: pair, Err: fmt.Errorf("invalid forex rate %v: %w", result.Rate, err)}
	}
	return result.Rate, nil
}

// ListIdentifiers returns every symbol listed on exchange. A payload that is
// not an array, or contains entries without a symbol, is an error.
func (c *Client) ListIdentifiers(ctx context.Context, exchange string) ([]Symbol, error) {
	var result []Symbol
	if err := c.get(ctx, OpListSymbols, exchange, "/stock/symbol", url.Values{"exchange": {exchange}}, &result); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, &models.ProviderError{Op: OpListSymbols, Symbol: exchange, Err: errors.New("empty symbol list")}
	}
	for i := range result {
		if err := c.validate.Struct(&result[i]); err != nil {
			return nil, &models.ProviderError{Op: OpListSymbols, Symbol: exchange, Err: fmt.Errorf("malformed symbol list entry %d: %w", i, err)}
		}
	}
	return result, nil
}
