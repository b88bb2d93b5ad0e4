// Package catalog is the order service's view of the remote catalog: one
// lookup per item, with the caller's credential forwarded untouched.
package catalog

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

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"

	"github.com/vasiliy-maslov/order-platform/pkg/apperr"
	"github.com/vasiliy-maslov/order-platform/pkg/auth"
	"github.com/vasiliy-maslov/order-platform/pkg/logger"
)

var (
	ErrItemNotFound       = apperr.New(apperr.NotFound, "product not found")
	ErrUnavailable        = apperr.New(apperr.UpstreamUnavailable, "catalog service unavailable")
	ErrCredentialRejected = apperr.New(apperr.Unauthorized, "invalid or expired token")
)

// maxBodyBytes bounds how much of a catalog response is read.
const maxBodyBytes = 1 << 20

// Item is the subset of a catalog product an order needs.
type Item struct {
	ID                string
	Name              string
	UnitPrice         decimal.Decimal
	AvailableQuantity int
}

// Client looks up one item. Errors are always classified as ErrItemNotFound,
// ErrCredentialRejected or ErrUnavailable.
type Client interface {
	Fetch(ctx context.Context, itemID string, credential auth.Credential) (*Item, error)
}

type productPayload struct {
	ID    string           `json:"id"`
	Name  string           `json:"name"`
	Price *decimal.Decimal `json:"price"`
	Stock *int             `json:"stock"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    *productPayload `json:"data"`
}

type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*HTTPClient)

func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) {
		h.httpClient = c
	}
}

func NewHTTPClient(baseURL string, timeout time.Duration, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) Fetch(ctx context.Context, itemID string, credential auth.Credential) (*Item, error) {
	ctx, span := otel.Tracer("order-service/catalog").Start(ctx, "catalog.Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("catalog.item_id", itemID))

	item, err := c.fetch(ctx, itemID, credential)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.KindOf(err).String())
		logger.FromContext(ctx).Warn().Err(err).Str("item_id", itemID).Msg("catalog: lookup failed")
		return nil, err
	}
	return item, nil
}

func (c *HTTPClient) fetch(ctx context.Context, itemID string, credential auth.Credential) (*Item, error) {
	endpoint := c.baseURL + "/api/products/" + url.PathEscape(itemID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperr.Wrap(err, ErrUnavailable.Kind, ErrUnavailable.Message)
	}
	if credential != "" {
		req.Header.Set("Authorization", string(credential))
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(err, ErrUnavailable.Kind, ErrUnavailable.Message)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrItemNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrCredentialRejected
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, apperr.Wrap(fmt.Errorf("unexpected status %d", resp.StatusCode), ErrUnavailable.Kind, ErrUnavailable.Message)
	}

	item, err := decodeItem(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperr.Wrap(err, ErrUnavailable.Kind, ErrUnavailable.Message)
	}
	return item, nil
}

func decodeItem(body io.Reader) (*Item, error) {
	var env envelope
	if err := json.NewDecoder(body).Decode(&env); err != nil {
		return nil, fmt.Errorf("malformed catalog response: %w", err)
	}

	switch {
	case !env.Success || env.Data == nil:
		return nil, errors.New("catalog response carries no product")
	case env.Data.ID == "":
		return nil, errors.New("catalog product has no id")
	case env.Data.Price == nil || env.Data.Price.IsNegative():
		return nil, errors.New("catalog product has no valid price")
	case env.Data.Stock == nil || *env.Data.Stock < 0:
		return nil, errors.New("catalog product has no valid stock")
	}

	return &Item{
		ID:                env.Data.ID,
		Name:              env.Data.Name,
		UnitPrice:         *env.Data.Price,
		AvailableQuantity: *env.Data.Stock,
	}, nil
}
