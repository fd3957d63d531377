// Package pricefeed is the REST client for the external price oracle. The
// oracle quotes fiat prices per unit of asset; nothing in the matching engine
// depends on it — it serves display conversion and swap cross-rates only.
package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/coinledger/internal/domain"
)

// Client calls the price oracle API. Endpoints are shaped
// "{base}/{fiat}?id={asset}" and answer with the asset's current price.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a price oracle client. baseURL is the API root, e.g.
// "https://api.nekosunevr.co.uk/v5/cryptoapi/nekogeko/prices".
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// apiPrice is the oracle's wire format. A missing/zero current_price means
// the asset is unknown upstream.
type apiPrice struct {
	CurrentPrice float64 `json:"current_price"`
}

// GetPrice returns the fiat price of one unit of asset. Unknown assets and
// transport failures surface as domain.ErrPriceUnavailable so callers can
// treat oracle downtime as the recoverable condition it is.
func (c *Client) GetPrice(ctx context.Context, asset, fiat string) (float64, error) {
	u := fmt.Sprintf("%s/%s?id=%s", c.baseURL, url.PathEscape(fiat), url.QueryEscape(asset))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("pricefeed: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("pricefeed: get price %s: %w", asset, err)
		}
		return 0, fmt.Errorf("%w: %s: %v", domain.ErrPriceUnavailable, asset, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("pricefeed: read response for %s: %w", asset, err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: %s: upstream status %d", domain.ErrPriceUnavailable, asset, resp.StatusCode)
	}

	var price apiPrice
	if err := json.Unmarshal(body, &price); err != nil {
		return 0, fmt.Errorf("pricefeed: decode price for %s: %w", asset, err)
	}
	if price.CurrentPrice <= 0 {
		return 0, fmt.Errorf("%w: %s", domain.ErrPriceUnavailable, asset)
	}

	return price.CurrentPrice, nil
}

// Compile-time interface check.
var _ domain.PriceSource = (*Client)(nil)
