package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"lender/models"

	log "github.com/sirupsen/logrus"
)

// FeedClient reads USD prices from an HTTP JSON price feed. Each asset's feed
// ID is resolved against the base URL as GET {baseURL}/api/v1/prices/{feedID}.
// Prices are never cached: a quote that cannot be fetched fresh, is stale, or
// is non-positive makes PriceUSD fail, and the calling operation aborts with
// it. Lending against a guessed price is worse than refusing the operation.
type FeedClient struct {
	baseURL string
	maxAge  time.Duration
	client  *http.Client
	now     func() time.Time
}

// feedResponse is the wire format of one price quote. Price is a decimal
// string scaled by Decimals, so {"price": "250000000", "decimals": 8} is $2.50.
type feedResponse struct {
	FeedID    string `json:"feedID"`
	Price     string `json:"price"`
	Decimals  int    `json:"decimals"`
	Timestamp string `json:"timestamp"`
}

// NewFeedClient creates a feed client. Quotes older than maxAge are rejected.
func NewFeedClient(baseURL string, maxAge time.Duration) *FeedClient {
	return &FeedClient{
		baseURL: baseURL,
		maxAge:  maxAge,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		now: time.Now,
	}
}

// PriceUSD returns the asset's current USD price in 18-decimal fixed point
func (c *FeedClient) PriceUSD(ctx context.Context, asset models.Asset) (*big.Int, error) {
	url := fmt.Sprintf("%s/api/v1/prices/%s", c.baseURL, asset.FeedID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request for %s: %w", asset.FeedID, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed %s unreachable: %w", asset.FeedID, models.ErrPriceUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.WithFields(log.Fields{
			"feedID": asset.FeedID,
			"status": resp.StatusCode,
		}).Warn("Price feed returned non-OK status")
		return nil, fmt.Errorf("feed %s returned status %d: %w", asset.FeedID, resp.StatusCode, models.ErrPriceUnavailable)
	}

	var quote feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return nil, fmt.Errorf("feed %s returned malformed quote: %w", asset.FeedID, models.ErrPriceUnavailable)
	}

	return c.validate(asset, quote)
}

func (c *FeedClient) validate(asset models.Asset, quote feedResponse) (*big.Int, error) {
	ts, err := time.Parse(time.RFC3339Nano, quote.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("feed %s quote has invalid timestamp %q: %w", asset.FeedID, quote.Timestamp, models.ErrPriceUnavailable)
	}
	if age := c.now().Sub(ts); age > c.maxAge {
		log.WithFields(log.Fields{
			"feedID": asset.FeedID,
			"age":    age.String(),
			"maxAge": c.maxAge.String(),
		}).Warn("Rejecting stale price quote")
		return nil, fmt.Errorf("feed %s quote is %s old: %w", asset.FeedID, age.Truncate(time.Second), models.ErrPriceUnavailable)
	}

	raw, ok := new(big.Int).SetString(quote.Price, 10)
	if !ok {
		return nil, fmt.Errorf("feed %s quote has invalid price %q: %w", asset.FeedID, quote.Price, models.ErrPriceUnavailable)
	}
	if raw.Sign() <= 0 {
		return nil, fmt.Errorf("feed %s quote is non-positive: %w", asset.FeedID, models.ErrPriceUnavailable)
	}
	if quote.Decimals < 0 || quote.Decimals > 18 {
		return nil, fmt.Errorf("feed %s quote has unsupported decimals %d: %w", asset.FeedID, quote.Decimals, models.ErrPriceUnavailable)
	}

	// Normalize to 18 decimals
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(18-quote.Decimals)), nil)
	return raw.Mul(raw, scale), nil
}
