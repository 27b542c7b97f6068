// Package solana adapts a Solana JSON-RPC endpoint to the trade executor:
// balances, associated token accounts, address lookup tables, v0
// transaction build/sign/send and signature status.
package solana

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	sol "github.com/gagliardetto/solana-go"
	addresslookuptable "github.com/gagliardetto/solana-go/programs/address-lookup-table"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"go.uber.org/zap"

	"github.com/tide-labs/tide/internal/domain"
	"github.com/tide-labs/tide/internal/infra/trade"
)

// Client implements trade.SolanaClient over solana-go.
type Client struct {
	rpc        *rpc.Client
	commitment rpc.CommitmentType
	log        *zap.Logger
}

// New dials nothing; requests go to endpoint lazily through hc, or through
// solana-go's default transport when hc is nil.
func New(endpoint string, hc *http.Client, logger *zap.Logger) *Client {
	c := &Client{commitment: rpc.CommitmentConfirmed, log: logger}
	if hc == nil {
		c.rpc = rpc.New(endpoint)
	} else {
		c.rpc = rpc.NewWithCustomRPCClient(jsonrpc.NewClientWithOpts(endpoint, &jsonrpc.RPCClientOpts{HTTPClient: hc}))
	}
	return c
}

// Ping reports the node's health.
func (c *Client) Ping(ctx context.Context) error {
	status, err := c.rpc.GetHealth(ctx)
	if err != nil {
		return err
	}
	if status != rpc.HealthOk {
		return fmt.Errorf("solana node %s", status)
	}
	return nil
}

// ParsePrivateKey decodes a base58 64-byte keypair.
func ParsePrivateKey(s string) (domain.PrivateKey, error) {
	pk, err := sol.PrivateKeyFromBase58(s)
	if err != nil {
		return nil, fmt.Errorf("decode solana key: %w", err)
	}
	if len(pk) != 64 {
		return nil, fmt.Errorf("solana key must be 64 bytes, got %d", len(pk))
	}
	return domain.PrivateKey(pk), nil
}

// Wallet returns the base58 address of key.
func (c *Client) Wallet(key domain.PrivateKey) (string, error) {
	if len(key) != 64 {
		return "", fmt.Errorf("%w: solana key must be 64 bytes", domain.ErrKeyCorrupted)
	}
	return sol.PrivateKey(key).PublicKey().String(), nil
}

// AssociatedTokenAccount derives owner's token account for mint.
func (c *Client) AssociatedTokenAccount(owner, mint string) (string, error) {
	o, err := sol.PublicKeyFromBase58(owner)
	if err != nil {
		return "", fmt.Errorf("owner %q: %w", owner, err)
	}
	m, err := sol.PublicKeyFromBase58(mint)
	if err != nil {
		return "", fmt.Errorf("mint %q: %w", mint, err)
	}
	ata, _, err := sol.FindAssociatedTokenAddress(o, m)
	if err != nil {
		return "", err
	}
	return ata.String(), nil
}

// Balance returns the lamports held by account.
func (c *Client) Balance(ctx context.Context, account string) (uint64, error) {
	pk, err := sol.PublicKeyFromBase58(account)
	if err != nil {
		return 0, err
	}
	res, err := c.rpc.GetBalance(ctx, pk, c.commitment)
	if err != nil {
		return 0, err
	}
	return res.Value, nil
}

// TokenAccountBalance returns the raw amount of an SPL token account, or 0
// when the account does not exist yet.
func (c *Client) TokenAccountBalance(ctx context.Context, account string) (uint64, error) {
	pk, err := sol.PublicKeyFromBase58(account)
	if err != nil {
		return 0, err
	}
	res, err := c.rpc.GetTokenAccountBalance(ctx, pk, c.commitment)
	if err != nil {
		if isMissingAccount(err) {
			return 0, nil
		}
		return 0, err
	}
	if res == nil || res.Value == nil {
		return 0, nil
	}
	amount, err := strconv.ParseUint(res.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("token amount %q: %w", res.Value.Amount, err)
	}
	return amount, nil
}

// isMissingAccount matches the node's answer for a token account that was
// never created.
func isMissingAccount(err error) bool {
	return strings.Contains(err.Error(), "could not find account")
}

// AddressLookupTables fetches and decodes the given lookup table accounts.
func (c *Client) AddressLookupTables(ctx context.Context, addrs []string) ([]trade.LookupTable, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	keys := make([]sol.PublicKey, 0, len(addrs))
	for _, a := range addrs {
		pk, err := sol.PublicKeyFromBase58(a)
		if err != nil {
			return nil, fmt.Errorf("lookup table %q: %w", a, err)
		}
		keys = append(keys, pk)
	}

	res, err := c.rpc.GetMultipleAccountsWithOpts(ctx, keys, &rpc.GetMultipleAccountsOpts{
		Commitment: c.commitment,
		Encoding:   sol.EncodingBase64,
	})
	if err != nil {
		return nil, err
	}

	tables := make([]trade.LookupTable, 0, len(keys))
	for i, acct := range res.Value {
		if acct == nil {
			return nil, fmt.Errorf("lookup table %s not found", addrs[i])
		}
		state, err := addresslookuptable.DecodeAddressLookupTableState(acct.Data.GetBinary())
		if err != nil {
			return nil, fmt.Errorf("lookup table %s: %w", addrs[i], err)
		}
		entries := make([]string, 0, len(state.Addresses))
		for _, a := range state.Addresses {
			entries = append(entries, a.String())
		}
		tables = append(tables, trade.LookupTable{Key: addrs[i], Addresses: entries})
	}
	return tables, nil
}

// SendVersioned compiles the compute budget and ixs into a v0 transaction
// paid and signed by key.
func (c *Client) SendVersioned(ctx context.Context, key domain.PrivateKey, budget trade.ComputeBudget, ixs []trade.Instruction, tables []trade.LookupTable) (string, error) {
	if len(key) != 64 {
		return "", fmt.Errorf("%w: solana key must be 64 bytes", domain.ErrKeyCorrupted)
	}
	signer := sol.PrivateKey(key)
	payer := signer.PublicKey()

	compiled := budgetInstructions(budget)
	for _, ix := range ixs {
		gi, err := toInstruction(ix)
		if err != nil {
			return "", err
		}
		compiled = append(compiled, gi)
	}

	alts, err := toAddressTables(tables)
	if err != nil {
		return "", err
	}

	bh, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("get latest blockhash: %w", err)
	}

	opts := []sol.TransactionOption{sol.TransactionPayer(payer)}
	if len(alts) > 0 {
		opts = append(opts, sol.TransactionAddressTables(alts))
	}
	tx, err := sol.NewTransaction(compiled, bh.Value.Blockhash, opts...)
	if err != nil {
		return "", fmt.Errorf("compile transaction: %w", err)
	}
	if _, err := tx.Sign(func(pk sol.PublicKey) *sol.PrivateKey {
		if pk.Equals(payer) {
			return &signer
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       true,
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return "", err
	}
	c.log.Debug("transaction sent", zap.String("sig", sig.String()), zap.String("payer", payer.String()))
	return sig.String(), nil
}

// SignatureStatus reports whether sig has landed, searching history.
func (c *Client) SignatureStatus(ctx context.Context, sig string) (trade.SignatureStatus, error) {
	s, err := sol.SignatureFromBase58(sig)
	if err != nil {
		return trade.SignatureStatus{}, err
	}
	res, err := c.rpc.GetSignatureStatuses(ctx, true, s)
	if err != nil {
		return trade.SignatureStatus{}, err
	}
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return trade.SignatureStatus{}, nil
	}
	st := trade.SignatureStatus{Found: true}
	if res.Value[0].Err != nil {
		st.Err = fmt.Sprint(res.Value[0].Err)
	}
	return st, nil
}

// ─── Decoding ───────────────────────────────────────────────────────────────

// budgetInstructions returns SetComputeUnitLimit then SetComputeUnitPrice.
func budgetInstructions(b trade.ComputeBudget) []sol.Instruction {
	return []sol.Instruction{
		computebudget.NewSetComputeUnitLimitInstruction(b.UnitLimit).Build(),
		computebudget.NewSetComputeUnitPriceInstruction(b.UnitPrice).Build(),
	}
}

func toInstruction(ix trade.Instruction) (*sol.GenericInstruction, error) {
	program, err := sol.PublicKeyFromBase58(ix.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("program id %q: %w", ix.ProgramID, err)
	}
	metas := make(sol.AccountMetaSlice, 0, len(ix.Accounts))
	for _, a := range ix.Accounts {
		pk, err := sol.PublicKeyFromBase58(a.PubKey)
		if err != nil {
			return nil, fmt.Errorf("account %q: %w", a.PubKey, err)
		}
		metas = append(metas, sol.NewAccountMeta(pk, a.IsWritable, a.IsSigner))
	}
	return sol.NewInstruction(program, metas, ix.Data), nil
}

func toAddressTables(tables []trade.LookupTable) (map[sol.PublicKey]sol.PublicKeySlice, error) {
	out := make(map[sol.PublicKey]sol.PublicKeySlice, len(tables))
	for _, t := range tables {
		key, err := sol.PublicKeyFromBase58(t.Key)
		if err != nil {
			return nil, fmt.Errorf("lookup table %q: %w", t.Key, err)
		}
		addrs := make(sol.PublicKeySlice, 0, len(t.Addresses))
		for _, a := range t.Addresses {
			pk, err := sol.PublicKeyFromBase58(a)
			if err != nil {
				return nil, fmt.Errorf("lookup table %s entry %q: %w", t.Key, a, err)
			}
			addrs = append(addrs, pk)
		}
		out[key] = addrs
	}
	return out, nil
}
