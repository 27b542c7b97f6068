// Package evm adapts an EVM JSON-RPC endpoint to the trade executor:
// native and ERC20 balances, allowance, approval and swap submission with
// receipt wait.
package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/tide-labs/tide/internal/domain"
	"github.com/tide-labs/tide/internal/infra/trade"
)

const erc20ABI = `[
 {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"balance","type":"uint256"}]},
 {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// Backend is the RPC surface the client needs. *ethclient.Client satisfies it.
type Backend interface {
	bind.DeployBackend
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Client implements trade.EVMClient for one chain.
type Client struct {
	mu      sync.RWMutex
	backend Backend

	rpcURL  string
	dial    func(ctx context.Context, rpcURL string, chainID uint64) (Backend, error)
	chainID *big.Int
	erc20   abi.ABI
	log     *zap.Logger
}

// Dial connects to rpcURL over hc and checks it serves chainID. A nil hc
// uses the go-ethereum default transport.
func Dial(ctx context.Context, rpcURL string, chainID uint64, hc *http.Client, logger *zap.Logger) (*Client, error) {
	dial := func(ctx context.Context, rpcURL string, chainID uint64) (Backend, error) {
		return dialBackend(ctx, rpcURL, chainID, hc)
	}
	b, err := dial(ctx, rpcURL, chainID)
	if err != nil {
		return nil, err
	}
	c, err := NewClient(b, chainID, logger)
	if err != nil {
		return nil, err
	}
	c.rpcURL = rpcURL
	c.dial = dial
	return c, nil
}

func dialBackend(ctx context.Context, rpcURL string, chainID uint64, hc *http.Client) (Backend, error) {
	var opts []rpc.ClientOption
	if hc != nil {
		opts = append(opts, rpc.WithHTTPClient(hc))
	}
	rc, err := rpc.DialOptions(ctx, rpcURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	ec := ethclient.NewClient(rc)
	got, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("chain id of %s: %w", rpcURL, err)
	}
	if got.Uint64() != chainID {
		ec.Close()
		return nil, fmt.Errorf("rpc %s serves chain %s, configured %d", rpcURL, got, chainID)
	}
	return ec, nil
}

// Reconnect dials the endpoint again and swaps the new connection in.
// Calls still running on the old connection fail.
func (c *Client) Reconnect(ctx context.Context) error {
	if c.dial == nil {
		return errors.New("client has no endpoint to redial")
	}
	b, err := c.dial(ctx, c.rpcURL, c.chainID.Uint64())
	if err != nil {
		return err
	}
	c.mu.Lock()
	old := c.backend
	c.backend = b
	c.mu.Unlock()

	if closer, ok := old.(interface{ Close() }); ok {
		closer.Close()
	}
	c.log.Info("rpc reconnected")
	return nil
}

// Close releases the RPC connection.
func (c *Client) Close() {
	if closer, ok := c.be().(interface{ Close() }); ok {
		closer.Close()
	}
}

func (c *Client) be() Backend {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.backend
}

// NewClient wraps an existing backend.
func NewClient(b Backend, chainID uint64, logger *zap.Logger) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return &Client{
		backend: b,
		chainID: new(big.Int).SetUint64(chainID),
		erc20:   parsed,
		log:     logger,
	}, nil
}

// ParsePrivateKey decodes a hex secp256k1 scalar, with or without 0x.
func ParsePrivateKey(s string) (domain.PrivateKey, error) {
	pk, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode evm key: %w", err)
	}
	return domain.PrivateKey(crypto.FromECDSA(pk)), nil
}

func toECDSA(key domain.PrivateKey) (*ecdsa.PrivateKey, error) {
	pk, err := crypto.ToECDSA(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrKeyCorrupted, err)
	}
	return pk, nil
}

// Wallet returns the checksummed address of key.
func (c *Client) Wallet(key domain.PrivateKey) (string, error) {
	pk, err := toECDSA(key)
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(pk.PublicKey).Hex(), nil
}

// Balance returns owner's native balance in wei.
func (c *Client) Balance(ctx context.Context, owner string) (*big.Int, error) {
	return c.be().BalanceAt(ctx, common.HexToAddress(owner), nil)
}

// TokenBalance returns owner's ERC20 balance in base units.
func (c *Client) TokenBalance(ctx context.Context, token, owner string) (*big.Int, error) {
	return c.callUint(ctx, token, "balanceOf", common.HexToAddress(owner))
}

// Allowance returns how much spender may move of owner's token.
func (c *Client) Allowance(ctx context.Context, token, owner, spender string) (*big.Int, error) {
	return c.callUint(ctx, token, "allowance", common.HexToAddress(owner), common.HexToAddress(spender))
}

// Approve grants spender amount of token and waits for the receipt.
func (c *Client) Approve(ctx context.Context, key domain.PrivateKey, token, spender string, amount *big.Int) (trade.Receipt, error) {
	data, err := c.erc20.Pack("approve", common.HexToAddress(spender), amount)
	if err != nil {
		return trade.Receipt{}, fmt.Errorf("pack approve: %w", err)
	}
	return c.send(ctx, key, common.HexToAddress(token), data, new(big.Int), nil, 0)
}

// SendTransaction signs the aggregator payload and waits for the receipt.
func (c *Client) SendTransaction(ctx context.Context, key domain.PrivateKey, tx trade.SwapTx) (trade.Receipt, error) {
	if !common.IsHexAddress(tx.To) {
		return trade.Receipt{}, fmt.Errorf("swap target %q is not an address", tx.To)
	}
	return c.send(ctx, key, common.HexToAddress(tx.To), tx.Data, tx.Value, tx.GasPrice, tx.Gas)
}

func (c *Client) callUint(ctx context.Context, token, method string, args ...any) (*big.Int, error) {
	data, err := c.erc20.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	to := common.HexToAddress(token)
	out, err := c.be().CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, token, err)
	}
	vals, err := c.erc20.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(vals) != 1 {
		return nil, fmt.Errorf("unpack %s: want 1 value, got %d", method, len(vals))
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: unexpected type %T", method, vals[0])
	}
	return v, nil
}

// send builds a legacy transaction, signs it with key, submits it and
// blocks until it is mined or ctx ends. A zero gas limit is estimated.
func (c *Client) send(ctx context.Context, key domain.PrivateKey, to common.Address, data []byte, value, gasPrice *big.Int, gas uint64) (trade.Receipt, error) {
	pk, err := toECDSA(key)
	if err != nil {
		return trade.Receipt{}, err
	}
	from := crypto.PubkeyToAddress(pk.PublicKey)
	b := c.be()
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := b.PendingNonceAt(ctx, from)
	if err != nil {
		return trade.Receipt{}, fmt.Errorf("pending nonce: %w", err)
	}
	if gasPrice == nil || gasPrice.Sign() == 0 {
		if gasPrice, err = b.SuggestGasPrice(ctx); err != nil {
			return trade.Receipt{}, fmt.Errorf("suggest gas price: %w", err)
		}
	}
	if gas == 0 {
		gas, err = b.EstimateGas(ctx, ethereum.CallMsg{
			From:     from,
			To:       &to,
			GasPrice: gasPrice,
			Value:    value,
			Data:     data,
		})
		if err != nil {
			return trade.Receipt{}, fmt.Errorf("estimate gas: %w", err)
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), pk)
	if err != nil {
		return trade.Receipt{}, fmt.Errorf("sign transaction: %w", err)
	}
	if err := b.SendTransaction(ctx, signed); err != nil {
		return trade.Receipt{}, err
	}
	c.log.Debug("transaction sent",
		zap.String("hash", signed.Hash().Hex()),
		zap.String("from", from.Hex()),
		zap.Uint64("nonce", nonce),
	)

	receipt, err := bind.WaitMined(ctx, b, signed)
	if err != nil {
		return trade.Receipt{}, fmt.Errorf("wait for %s: %w", signed.Hash().Hex(), err)
	}
	return trade.Receipt{
		TxHash:  signed.Hash().Hex(),
		Success: receipt.Status == types.ReceiptStatusSuccessful,
	}, nil
}

// Ping checks the RPC endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.be().SuggestGasPrice(ctx)
	return err
}
