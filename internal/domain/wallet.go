package domain

import "time"

// PrivateKey is the raw key material of one wallet: a 64-byte ed25519
// keypair on Solana, a 32-byte secp256k1 scalar on EVM chains.
type PrivateKey []byte

// WalletGroup is a named set of wallets on a single chain.
type WalletGroup struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Chain Chain        `json:"chain"`
	Keys  []PrivateKey `json:"-"`
}

// WalletGroupSummary describes a stored group without its key material.
type WalletGroupSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Chain     Chain     `json:"chain"`
	Wallets   int       `json:"wallets"`
	CreatedAt time.Time `json:"created_at"`
}
