package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	simplePricePath = "/simple/price"
	marketChartPath = "/coins/%s/market_chart"
)

// PricePoint is the normalized market-data slice of a sample.
type PricePoint struct {
	Price     decimal.Decimal
	MarketCap decimal.Decimal
	Change24h decimal.Decimal
}

// HistoryPoint is one historical price observation.
type HistoryPoint struct {
	Time  time.Time
	Price decimal.Decimal
}

// CoingeckoOptions parameterise the market-data provider.
type CoingeckoOptions struct {
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	MaxRetries      int
	RateLimitPerMin int
	UserAgent       string
}

// Coingecko fetches spot and historical prices from the CoinGecko API.
type Coingecko struct {
	opts    CoingeckoOptions
	client  *Client
	logger  zerolog.Logger
	baseURL string
}

// NewCoingecko constructs a market-data provider.
func NewCoingecko(opts CoingeckoOptions, logger zerolog.Logger) *Coingecko {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}

	client := NewClient(ClientOptions{
		Timeout:         opts.Timeout,
		MaxRetries:      opts.MaxRetries,
		RateLimitPerMin: opts.RateLimitPerMin,
		UserAgent:       opts.UserAgent,
	}, logger)

	return &Coingecko{
		opts:    opts,
		client:  client,
		logger:  logger.With().Str("component", "coingecko_fetcher").Logger(),
		baseURL: baseURL,
	}
}

type simplePriceEntry struct {
	USD       float64 `json:"usd"`
	MarketCap float64 `json:"usd_market_cap"`
	Change24h float64 `json:"usd_24h_change"`
}

// FetchPrice retrieves the current USD price for one CoinGecko id.
func (c *Coingecko) FetchPrice(ctx context.Context, coingeckoID string) (PricePoint, error) {
	query := url.Values{}
	query.Set("ids", coingeckoID)
	query.Set("vs_currencies", "usd")
	query.Set("include_24hr_change", "true")
	query.Set("include_market_cap", "true")
	if c.opts.APIKey != "" {
		query.Set("x_cg_demo_api_key", c.opts.APIKey)
	}

	endpoint := c.baseURL + simplePricePath + "?" + query.Encode()

	var payload map[string]simplePriceEntry
	if err := c.client.GetJSON(ctx, endpoint, &payload); err != nil {
		return PricePoint{}, err
	}

	entry, ok := payload[coingeckoID]
	if !ok {
		return PricePoint{}, permanentError(fmt.Errorf("coin %q missing from price response", coingeckoID))
	}
	if entry.USD <= 0 {
		return PricePoint{}, permanentError(fmt.Errorf("coin %q returned non-positive price", coingeckoID))
	}

	return PricePoint{
		Price:     decimal.NewFromFloat(entry.USD),
		MarketCap: decimal.NewFromFloat(entry.MarketCap),
		Change24h: decimal.NewFromFloat(entry.Change24h),
	}, nil
}

type marketChartResponse struct {
	Prices [][2]float64 `json:"prices"`
}

// FetchHistory retrieves up to days of historical prices, oldest-first.
func (c *Coingecko) FetchHistory(ctx context.Context, coingeckoID string, days int) ([]HistoryPoint, error) {
	if days <= 0 {
		days = 30
	}

	query := url.Values{}
	query.Set("vs_currency", "usd")
	query.Set("days", fmt.Sprintf("%d", days))
	if c.opts.APIKey != "" {
		query.Set("x_cg_demo_api_key", c.opts.APIKey)
	}

	endpoint := c.baseURL + fmt.Sprintf(marketChartPath, url.PathEscape(coingeckoID)) + "?" + query.Encode()

	var payload marketChartResponse
	if err := c.client.GetJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}

	points := make([]HistoryPoint, 0, len(payload.Prices))
	for _, pair := range payload.Prices {
		points = append(points, HistoryPoint{
			Time:  time.UnixMilli(int64(pair[0])).UTC(),
			Price: decimal.NewFromFloat(pair[1]),
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })

	return points, nil
}

var _ PriceProvider = (*Coingecko)(nil)
var _ HistoryProvider = (*Coingecko)(nil)
