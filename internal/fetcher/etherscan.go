package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pegwatch/internal/config"
)

// ChainStats is the on-chain slice of a sample. Either field may be nil when
// the corresponding lookup is unsupported or failed.
type ChainStats struct {
	Supply  *decimal.Decimal
	Holders *int64
}

// EtherscanOptions parameterise the explorer provider.
type EtherscanOptions struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	MaxRetries   int
	HolderCounts bool
}

// Etherscan reads token supply and holder counts from the Etherscan API.
type Etherscan struct {
	opts    EtherscanOptions
	client  *Client
	logger  zerolog.Logger
	baseURL string
}

// NewEtherscan constructs an explorer provider.
func NewEtherscan(opts EtherscanOptions, logger zerolog.Logger) *Etherscan {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.etherscan.io/api"
	}

	client := NewClient(ClientOptions{
		Timeout:    opts.Timeout,
		MaxRetries: opts.MaxRetries,
	}, logger)

	return &Etherscan{
		opts:    opts,
		client:  client,
		logger:  logger.With().Str("component", "etherscan_fetcher").Logger(),
		baseURL: baseURL,
	}
}

type etherscanEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// FetchChainStats merges token supply and holder count for asset. A holder
// lookup failure degrades to a supply-only result.
func (e *Etherscan) FetchChainStats(ctx context.Context, asset config.Asset) (ChainStats, error) {
	if asset.Contract == "" {
		return ChainStats{}, permanentError(fmt.Errorf("asset %s has no contract address", asset.Symbol))
	}

	supply, err := e.fetchSupply(ctx, asset)
	if err != nil {
		return ChainStats{}, err
	}
	stats := ChainStats{Supply: &supply}

	if e.opts.HolderCounts {
		holders, err := e.fetchHolderCount(ctx, asset)
		if err != nil {
			e.logger.Warn().Err(err).Str("asset", asset.Symbol).Msg("holder count unavailable")
		} else {
			stats.Holders = &holders
		}
	}

	return stats, nil
}

func (e *Etherscan) fetchSupply(ctx context.Context, asset config.Asset) (decimal.Decimal, error) {
	result, err := e.call(ctx, url.Values{
		"module":          {"stats"},
		"action":          {"tokensupply"},
		"contractaddress": {asset.Contract},
	})
	if err != nil {
		return decimal.Decimal{}, err
	}

	var atoms string
	if err := json.Unmarshal(result, &atoms); err != nil {
		return decimal.Decimal{}, permanentError(fmt.Errorf("decode token supply: %w", err))
	}

	supply, err := decimal.NewFromString(atoms)
	if err != nil {
		return decimal.Decimal{}, permanentError(fmt.Errorf("parse token supply %q: %w", atoms, err))
	}

	return supply.Shift(-asset.Decimals), nil
}

func (e *Etherscan) fetchHolderCount(ctx context.Context, asset config.Asset) (int64, error) {
	result, err := e.call(ctx, url.Values{
		"module":          {"token"},
		"action":          {"tokenholderlist"},
		"contractaddress": {asset.Contract},
	})
	if err != nil {
		return 0, err
	}

	var holders []json.RawMessage
	if err := json.Unmarshal(result, &holders); err != nil {
		return 0, permanentError(fmt.Errorf("decode holder list: %w", err))
	}

	return int64(len(holders)), nil
}

func (e *Etherscan) call(ctx context.Context, params url.Values) (json.RawMessage, error) {
	if e.opts.APIKey != "" {
		params.Set("apikey", e.opts.APIKey)
	}

	var envelope etherscanEnvelope
	if err := e.client.GetJSON(ctx, e.baseURL+"?"+params.Encode(), &envelope); err != nil {
		return nil, err
	}

	// Etherscan reports application errors inside a 200 response.
	if envelope.Status != "1" {
		if strings.Contains(strings.ToLower(envelope.Message), "rate limit") {
			return nil, &Error{Kind: KindRateLimited, Err: fmt.Errorf("etherscan: %s", envelope.Message)}
		}
		return nil, permanentError(fmt.Errorf("etherscan: %s", envelope.Message))
	}

	return envelope.Result, nil
}

var _ SupplyProvider = (*Etherscan)(nil)
