// Package chain wraps the JSON-RPC endpoint of the ledger being indexed.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/lru"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// timestampCacheSize bounds the block timestamp cache. Follow mode revisits
// recent heights only, so older entries are evicted first.
const timestampCacheSize = 50_000

// Client reads blocks, logs and code from one RPC endpoint. It satisfies
// indexer.LogSource and replica.Caller.
type Client struct {
	rpc *rpc.Client
	eth *ethclient.Client

	timestamps *lru.Cache[uint64, uint64]
}

// NewClient dials rpcURL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	if rpcURL == "" {
		return nil, errors.New("rpc url is empty")
	}
	conn, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return &Client{
		rpc:        conn,
		eth:        ethclient.NewClient(conn),
		timestamps: lru.NewCache[uint64, uint64](timestampCacheSize),
	}, nil
}

// Close releases the connection.
func (c *Client) Close() {
	if c.rpc != nil {
		c.rpc.Close()
	}
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.eth.ChainID(ctx)
}

func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

// BlockTimestamp returns the header time of block number. Every bucket
// assignment needs it, so results are cached.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	if ts, ok := c.timestamps.Get(number); ok {
		return ts, nil
	}
	header, err := c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, fmt.Errorf("header %d: %w", number, err)
	}
	c.timestamps.Add(number, header.Time)
	return header.Time, nil
}

// FilterLogs returns logs in [fromBlock, toBlock] whose topic0 is one of
// topic0. An empty address list matches every emitter.
func (c *Client) FilterLogs(
	ctx context.Context,
	fromBlock uint64,
	toBlock uint64,
	addresses []common.Address,
	topic0 []common.Hash,
) ([]types.Log, error) {
	return c.eth.FilterLogs(ctx, logQuery(fromBlock, toBlock, addresses, topic0))
}

func logQuery(fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ethereum.FilterQuery {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
	}
	if len(topic0) > 0 {
		q.Topics = [][]common.Hash{topic0}
	}
	return q
}

// CodeAt returns the code at addr in the latest block.
func (c *Client) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	return c.eth.CodeAt(ctx, addr, nil)
}

// Call performs an eth_call from caller against the latest block, so the
// client can read replica state through replica.Caller.
func (c *Client) Call(ctx context.Context, caller, to common.Address, input []byte) ([]byte, error) {
	return c.eth.CallContract(ctx, ethereum.CallMsg{From: caller, To: &to, Data: input}, nil)
}
