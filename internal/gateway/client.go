package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apperrors "github.com/kimhsiao/fieldsync/internal/errors"
	"github.com/kimhsiao/fieldsync/internal/logging"
	"github.com/kimhsiao/fieldsync/internal/models"
)

// DefaultTimeout bounds every backend call.
const DefaultTimeout = 15 * time.Second

const (
	maxResponseBody = 4 << 20
	maxErrorBody    = 64 << 10
)

// Backend REST paths.
const (
	PathVisits       = "/api/visits"
	PathLocationLogs = "/api/location-logs"
	PathSales        = "/api/sales"
	PathSchemes      = "/api/schemes"
	PathDoctors      = "/api/doctors"
	PathProducts     = "/api/products"
	PathStockists    = "/api/stockists"
)

// TokenSource supplies the bearer token for the signed-in user. It returns
// ErrNoToken when nobody is signed in.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource with a fixed token. An empty token means
// unauthenticated.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token(ctx context.Context) (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// Client implements Gateway over HTTP.
type Client struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTokenSource sets the bearer token provider. Without one, requests are
// sent with no Authorization header.
func WithTokenSource(ts TokenSource) ClientOption {
	return func(c *Client) { c.tokens = ts }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// WithTransport replaces the base transport. It is still wrapped for tracing.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) { c.http.Transport = otelhttp.NewTransport(rt) }
}

// NewClient creates a Client for the backend at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateVisit implements Gateway.
func (c *Client) CreateVisit(ctx context.Context, visit models.Visit) (Receipt, error) {
	return c.create(ctx, PathVisits, visit, true)
}

// CreateLocationLog implements Gateway.
func (c *Client) CreateLocationLog(ctx context.Context, log models.LocationLog) (Receipt, error) {
	return c.create(ctx, PathLocationLogs, log, false)
}

// CreateSale implements Gateway.
func (c *Client) CreateSale(ctx context.Context, sale models.Sale) (Receipt, error) {
	return c.create(ctx, PathSales, sale, false)
}

// CreateScheme implements Gateway.
func (c *Client) CreateScheme(ctx context.Context, scheme models.Scheme) (Receipt, error) {
	return c.create(ctx, PathSchemes, scheme, false)
}

// ListDoctors implements Gateway.
func (c *Client) ListDoctors(ctx context.Context) ([]models.Doctor, error) {
	var out []models.Doctor
	err := c.list(ctx, PathDoctors, &out)
	return out, err
}

// ListProducts implements Gateway.
func (c *Client) ListProducts(ctx context.Context) ([]models.Product, error) {
	var out []models.Product
	err := c.list(ctx, PathProducts, &out)
	return out, err
}

// ListStockists implements Gateway.
func (c *Client) ListStockists(ctx context.Context) ([]models.Stockist, error) {
	var out []models.Stockist
	err := c.list(ctx, PathStockists, &out)
	return out, err
}

type validator interface {
	Validate() error
}

func (c *Client) create(ctx context.Context, path string, body validator, conflictAware bool) (Receipt, error) {
	if err := body.Validate(); err != nil {
		return Receipt{}, apperrors.Wrap(apperrors.ErrValidation, "request rejected locally", err)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Receipt{}, apperrors.Wrap(apperrors.ErrInvalid, "failed to encode request", err)
	}

	data, err := c.do(ctx, http.MethodPost, path, payload, conflictAware)
	if err != nil {
		return Receipt{}, err
	}
	return decodeReceipt(data), nil
}

func (c *Client) list(ctx context.Context, path string, out any) error {
	data, err := c.do(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(unwrapEnvelope(data), out); err != nil {
		return apperrors.Wrap(apperrors.ErrGatewayUnavailable, "malformed response from "+path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, conflictAware bool) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfig, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrUnauthenticated, "no credentials for backend", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		logging.Debug("Backend request failed", map[string]interface{}{
			"method": method,
			"path":   path,
			"error":  err.Error(),
		})
		return nil, NetworkError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrGatewayUnavailable, "failed to read response", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}

	se := parseStatusError(resp.StatusCode, data)
	logging.Debug("Backend returned error status", map[string]interface{}{
		"method": method,
		"path":   path,
		"status": resp.StatusCode,
	})
	return nil, classify(se, conflictAware)
}

type errorBody struct {
	Message         string `json:"message"`
	Error           string `json:"error"`
	ExistingVisitID string `json:"existingVisitId"`
}

func parseStatusError(status int, data []byte) *StatusError {
	se := &StatusError{StatusCode: status}
	if len(data) > maxErrorBody {
		data = data[:maxErrorBody]
	}
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil {
		se.Message = strings.TrimSpace(string(data))
		return se
	}
	se.Message = body.Message
	if se.Message == "" {
		se.Message = body.Error
	}
	se.ExistingVisitID = body.ExistingVisitID
	return se
}

// unwrapEnvelope strips a {"data": ...} wrapper when the backend uses one.
func unwrapEnvelope(data []byte) []byte {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err == nil && len(env.Data) > 0 {
		return env.Data
	}
	return data
}

func decodeReceipt(data []byte) Receipt {
	var body struct {
		ID      string `json:"id"`
		MongoID string `json:"_id"`
	}
	if err := json.Unmarshal(unwrapEnvelope(data), &body); err != nil {
		return Receipt{}
	}
	if body.ID != "" {
		return Receipt{ID: body.ID}
	}
	return Receipt{ID: body.MongoID}
}

var _ Gateway = (*Client)(nil)
