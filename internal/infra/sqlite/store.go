package sqlite

import (
	"bytes"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/tide-labs/tide/internal/domain"
)

// KeySealer encrypts key material before it touches disk.
type KeySealer interface {
	Seal(plain []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

const canaryKey = "keystore_canary"

var canaryPlain = []byte("tide keystore")

// WalletStore persists wallet groups with sealed keys. It implements
// domain.WalletGroupStore.
type WalletStore struct {
	db     *DB
	sealer KeySealer
}

// NewWalletStore binds the store to sealer. The first call on a fresh
// database records a sealed canary; later calls check the sealer can open
// it, so a wrong passphrase fails here rather than at task creation.
func NewWalletStore(db *DB, sealer KeySealer) (*WalletStore, error) {
	s := &WalletStore{db: db, sealer: sealer}

	stored, err := db.GetMeta(canaryKey)
	if err != nil {
		return nil, fmt.Errorf("read keystore canary: %w", err)
	}
	if stored == "" {
		sealed, err := sealer.Seal(canaryPlain)
		if err != nil {
			return nil, fmt.Errorf("seal keystore canary: %w", err)
		}
		if err := db.SetMeta(canaryKey, hex.EncodeToString(sealed)); err != nil {
			return nil, fmt.Errorf("write keystore canary: %w", err)
		}
		return s, nil
	}

	raw, err := hex.DecodeString(stored)
	if err != nil {
		return nil, fmt.Errorf("%w: canary is not hex", domain.ErrKeyCorrupted)
	}
	plain, err := sealer.Open(raw)
	if err != nil {
		return nil, fmt.Errorf("wrong keystore passphrase: %w", err)
	}
	if !bytes.Equal(plain, canaryPlain) {
		return nil, fmt.Errorf("%w: canary mismatch", domain.ErrKeyCorrupted)
	}
	return s, nil
}

// SaveWalletGroup inserts or replaces a group and all of its keys.
func (s *WalletStore) SaveWalletGroup(g domain.WalletGroup) error {
	if g.ID == "" {
		return fmt.Errorf("wallet group id is required")
	}
	if g.Chain != domain.ChainSolana && !g.Chain.IsEVM() {
		return fmt.Errorf("unknown chain %q", g.Chain)
	}

	sealed := make([][]byte, len(g.Keys))
	for i, k := range g.Keys {
		b, err := s.sealer.Seal(k)
		if err != nil {
			return fmt.Errorf("seal key %d: %w", i, err)
		}
		sealed[i] = b
	}

	tx, err := s.db.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO wallet_groups (id, name, chain, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, chain=excluded.chain`,
		g.ID, g.Name, string(g.Chain), time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("upsert wallet group: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM wallet_keys WHERE group_id = ?`, g.ID); err != nil {
		return fmt.Errorf("clear wallet keys: %w", err)
	}
	for i, b := range sealed {
		if _, err := tx.Exec(
			`INSERT INTO wallet_keys (group_id, idx, sealed) VALUES (?, ?, ?)`,
			g.ID, i, b,
		); err != nil {
			return fmt.Errorf("insert wallet key %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// WalletGroup loads a group and opens its keys.
func (s *WalletStore) WalletGroup(id string) (domain.WalletGroup, error) {
	var g domain.WalletGroup
	var chain string
	err := s.db.db.QueryRow(
		`SELECT id, name, chain FROM wallet_groups WHERE id = ?`, id,
	).Scan(&g.ID, &g.Name, &chain)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WalletGroup{}, fmt.Errorf("%w: %s", domain.ErrWalletGroupNotFound, id)
	}
	if err != nil {
		return domain.WalletGroup{}, fmt.Errorf("query wallet group: %w", err)
	}
	g.Chain = domain.Chain(chain)

	rows, err := s.db.db.Query(
		`SELECT sealed FROM wallet_keys WHERE group_id = ? ORDER BY idx`, id,
	)
	if err != nil {
		return domain.WalletGroup{}, fmt.Errorf("query wallet keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sealed []byte
		if err := rows.Scan(&sealed); err != nil {
			return domain.WalletGroup{}, fmt.Errorf("scan wallet key: %w", err)
		}
		plain, err := s.sealer.Open(sealed)
		if err != nil {
			return domain.WalletGroup{}, fmt.Errorf("open key %d of %s: %w", len(g.Keys), id, err)
		}
		g.Keys = append(g.Keys, domain.PrivateKey(plain))
	}
	return g, rows.Err()
}

// ListWalletGroups returns every group, oldest first, without keys.
func (s *WalletStore) ListWalletGroups() ([]domain.WalletGroupSummary, error) {
	rows, err := s.db.db.Query(
		`SELECT g.id, g.name, g.chain, g.created_at, COUNT(k.idx)
		 FROM wallet_groups g LEFT JOIN wallet_keys k ON k.group_id = g.id
		 GROUP BY g.id ORDER BY g.created_at, g.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list wallet groups: %w", err)
	}
	defer rows.Close()

	var out []domain.WalletGroupSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// DeleteWalletGroup removes a group and its keys.
func (s *WalletStore) DeleteWalletGroup(id string) error {
	res, err := s.db.db.Exec(`DELETE FROM wallet_groups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete wallet group: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrWalletGroupNotFound, id)
	}
	return nil
}

func scanSummary(s scanner) (domain.WalletGroupSummary, error) {
	var sum domain.WalletGroupSummary
	var chain string
	var created int64
	if err := s.Scan(&sum.ID, &sum.Name, &chain, &created, &sum.Wallets); err != nil {
		return sum, fmt.Errorf("scan wallet group: %w", err)
	}
	sum.Chain = domain.Chain(chain)
	sum.CreatedAt = fromUnix(created)
	return sum, nil
}
