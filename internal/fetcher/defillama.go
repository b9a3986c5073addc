package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefillamaOptions parameterise the TVL provider.
type DefillamaOptions struct {
	BaseURL string
	Chain   string
	Timeout time.Duration
}

// Defillama reads aggregate chain TVL from the DeFiLlama API.
type Defillama struct {
	opts    DefillamaOptions
	client  *Client
	logger  zerolog.Logger
	baseURL string
}

// NewDefillama constructs a TVL provider.
func NewDefillama(opts DefillamaOptions, logger zerolog.Logger) *Defillama {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.llama.fi"
	}
	if opts.Chain == "" {
		opts.Chain = "Ethereum"
	}

	return &Defillama{
		opts:    opts,
		client:  NewClient(ClientOptions{Timeout: opts.Timeout}, logger),
		logger:  logger.With().Str("component", "defillama_fetcher").Logger(),
		baseURL: baseURL,
	}
}

type chainTVLPoint struct {
	Date int64   `json:"date"`
	TVL  float64 `json:"tvl"`
}

// FetchChainTVL returns the most recent TVL figure for the configured chain.
func (d *Defillama) FetchChainTVL(ctx context.Context) (decimal.Decimal, error) {
	endpoint := d.baseURL + "/v2/historicalChainTvls/" + url.PathEscape(d.opts.Chain)

	var points []chainTVLPoint
	if err := d.client.GetJSON(ctx, endpoint, &points); err != nil {
		return decimal.Decimal{}, err
	}
	if len(points) == 0 {
		return decimal.Decimal{}, permanentError(fmt.Errorf("no tvl datapoints for chain %s", d.opts.Chain))
	}

	head := points[len(points)-1]
	return decimal.NewFromFloat(head.TVL), nil
}

var _ TVLProvider = (*Defillama)(nil)
