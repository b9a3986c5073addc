package fetcher

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pegwatch/internal/config"
)

const erc20ABIJSON = `[{"inputs":[],"name":"totalSupply","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

var erc20ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic("failed to parse ERC-20 ABI: " + err.Error())
	}
	erc20ABI = parsed
}

// OnChainOptions parameterise the RPC supply provider.
type OnChainOptions struct {
	RPCURL  string
	Timeout time.Duration
}

// OnChain reads token supply straight from an Ethereum node via ERC-20
// totalSupply(). Holder counts are not available on this path.
type OnChain struct {
	opts      OnChainOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewOnChain builds an RPC supply provider.
func NewOnChain(opts OnChainOptions, logger zerolog.Logger) *OnChain {
	return &OnChain{opts: opts, logger: logger.With().Str("component", "onchain_fetcher").Logger()}
}

// FetchChainStats retrieves the token supply for asset from the chain.
func (o *OnChain) FetchChainStats(ctx context.Context, asset config.Asset) (ChainStats, error) {
	if o.opts.RPCURL == "" {
		return ChainStats{}, permanentError(errors.New("ethereum rpc url not configured"))
	}
	if asset.Contract == "" {
		return ChainStats{}, permanentError(errors.New("asset " + asset.Symbol + " has no contract address"))
	}

	timeout := o.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := o.getClient(ctx)
	if err != nil {
		return ChainStats{}, transportError(err)
	}

	payload, err := erc20ABI.Pack("totalSupply")
	if err != nil {
		return ChainStats{}, permanentError(err)
	}

	addr := common.HexToAddress(asset.Contract)
	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return ChainStats{}, transportError(err)
	}

	outputs, err := erc20ABI.Unpack("totalSupply", res)
	if err != nil {
		return ChainStats{}, permanentError(err)
	}
	if len(outputs) != 1 {
		return ChainStats{}, permanentError(errors.New("unexpected totalSupply response"))
	}

	atoms, ok := outputs[0].(*big.Int)
	if !ok {
		return ChainStats{}, permanentError(errors.New("failed to decode totalSupply output"))
	}

	supply := decimal.NewFromBigInt(atoms, -asset.Decimals)
	return ChainStats{Supply: &supply}, nil
}

func (o *OnChain) getClient(ctx context.Context) (*ethclient.Client, error) {
	o.clientMux.Lock()
	defer o.clientMux.Unlock()

	if o.client != nil {
		return o.client, nil
	}

	client, err := ethclient.DialContext(ctx, o.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	o.client = client
	return client, nil
}

var _ SupplyProvider = (*OnChain)(nil)
