package sqlite

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tide-labs/tide/internal/domain"
	"github.com/tide-labs/tide/internal/security"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// xorSealer is a reversible stand-in for the real sealer.
type xorSealer struct{ fail bool }

func (x xorSealer) Seal(p []byte) ([]byte, error) {
	out := make([]byte, len(p))
	for i, b := range p {
		out[i] = b ^ 0x5a
	}
	return out, nil
}

func (x xorSealer) Open(s []byte) ([]byte, error) {
	if x.fail {
		return nil, domain.ErrKeyCorrupted
	}
	return x.Seal(s)
}

func newTestStore(t *testing.T) *WalletStore {
	t.Helper()
	s, err := NewWalletStore(newTestDB(t), xorSealer{})
	if err != nil {
		t.Fatalf("NewWalletStore() error: %v", err)
	}
	return s
}

// ─── Database Lifecycle ─────────────────────────────────────────────────────

func TestOpen_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(dir, "state.db")); os.IsNotExist(err) {
		t.Error("state.db should exist")
	}
	if err := db.Ping(); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		db, err := Open(dir)
		if err != nil {
			t.Fatalf("Open() #%d error: %v", i, err)
		}
		db.Close()
	}
}

func TestMeta(t *testing.T) {
	db := newTestDB(t)

	if v, err := db.GetMeta("missing"); err != nil || v != "" {
		t.Fatalf("GetMeta(missing) = %q, %v; want empty", v, err)
	}
	if err := db.SetMeta("k", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetMeta("k", "v2"); err != nil {
		t.Fatal(err)
	}
	if v, _ := db.GetMeta("k"); v != "v2" {
		t.Errorf("GetMeta(k) = %q, want v2", v)
	}
}

// ─── Wallet Groups ──────────────────────────────────────────────────────────

func TestWalletGroup_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	g := domain.WalletGroup{
		ID:    "grp-1",
		Name:  "sol farm",
		Chain: domain.ChainSolana,
		Keys:  []domain.PrivateKey{[]byte("key-a"), []byte("key-b"), []byte("key-c")},
	}
	if err := s.SaveWalletGroup(g); err != nil {
		t.Fatalf("SaveWalletGroup() error: %v", err)
	}

	got, err := s.WalletGroup("grp-1")
	if err != nil {
		t.Fatalf("WalletGroup() error: %v", err)
	}
	if got.Name != "sol farm" || got.Chain != domain.ChainSolana {
		t.Errorf("got %+v", got)
	}
	if len(got.Keys) != 3 {
		t.Fatalf("keys = %d, want 3", len(got.Keys))
	}
	for i, k := range g.Keys {
		if !bytes.Equal(got.Keys[i], k) {
			t.Errorf("key %d = %q, want %q", i, got.Keys[i], k)
		}
	}
}

func TestWalletGroup_KeysSealedOnDisk(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveWalletGroup(domain.WalletGroup{
		ID: "g", Chain: domain.ChainBase, Keys: []domain.PrivateKey{[]byte("plaintext-key")},
	}); err != nil {
		t.Fatal(err)
	}

	var raw []byte
	if err := s.db.db.QueryRow(`SELECT sealed FROM wallet_keys WHERE group_id = 'g'`).Scan(&raw); err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(raw, []byte("plaintext-key")) {
		t.Error("key stored in plaintext")
	}
}

func TestWalletGroup_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.WalletGroup("nope")
	if !errors.Is(err, domain.ErrWalletGroupNotFound) {
		t.Errorf("err = %v, want ErrWalletGroupNotFound", err)
	}
	if err := s.DeleteWalletGroup("nope"); !errors.Is(err, domain.ErrWalletGroupNotFound) {
		t.Errorf("delete err = %v, want ErrWalletGroupNotFound", err)
	}
}

func TestWalletGroup_SaveReplacesKeys(t *testing.T) {
	s := newTestStore(t)
	g := domain.WalletGroup{ID: "g", Chain: domain.ChainBsc, Keys: []domain.PrivateKey{[]byte("a"), []byte("b")}}
	if err := s.SaveWalletGroup(g); err != nil {
		t.Fatal(err)
	}
	g.Keys = []domain.PrivateKey{[]byte("c")}
	if err := s.SaveWalletGroup(g); err != nil {
		t.Fatal(err)
	}

	got, _ := s.WalletGroup("g")
	if len(got.Keys) != 1 || string(got.Keys[0]) != "c" {
		t.Errorf("keys = %q, want [c]", got.Keys)
	}
}

func TestWalletGroup_SaveValidates(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveWalletGroup(domain.WalletGroup{Chain: domain.ChainSolana}); err == nil {
		t.Error("empty id should be rejected")
	}
	if err := s.SaveWalletGroup(domain.WalletGroup{ID: "x", Chain: "Dogecoin"}); err == nil {
		t.Error("unknown chain should be rejected")
	}
}

func TestListAndDeleteWalletGroups(t *testing.T) {
	s := newTestStore(t)
	_ = s.SaveWalletGroup(domain.WalletGroup{ID: "a", Name: "A", Chain: domain.ChainSolana,
		Keys: []domain.PrivateKey{[]byte("1"), []byte("2")}})
	_ = s.SaveWalletGroup(domain.WalletGroup{ID: "b", Name: "B", Chain: domain.ChainBase})

	list, err := s.ListWalletGroups()
	if err != nil {
		t.Fatalf("ListWalletGroups() error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	counts := map[string]int{}
	for _, g := range list {
		counts[g.ID] = g.Wallets
		if g.CreatedAt.IsZero() {
			t.Errorf("%s: CreatedAt not set", g.ID)
		}
	}
	if counts["a"] != 2 || counts["b"] != 0 {
		t.Errorf("wallet counts = %v", counts)
	}

	if err := s.DeleteWalletGroup("a"); err != nil {
		t.Fatal(err)
	}
	var n int
	_ = s.db.db.QueryRow(`SELECT COUNT(*) FROM wallet_keys WHERE group_id = 'a'`).Scan(&n)
	if n != 0 {
		t.Errorf("keys of deleted group left behind: %d", n)
	}
	if list, _ := s.ListWalletGroups(); len(list) != 1 {
		t.Errorf("len after delete = %d, want 1", len(list))
	}
}

// ─── Keystore Canary ────────────────────────────────────────────────────────

func TestNewWalletStore_RejectsWrongPassphrase(t *testing.T) {
	db := newTestDB(t)
	salt := []byte("0123456789abcdef")

	right, err := security.NewSealer([]byte("right"), salt)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewWalletStore(db, right); err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := NewWalletStore(db, right); err != nil {
		t.Fatalf("reopen with same passphrase: %v", err)
	}

	wrong, _ := security.NewSealer([]byte("wrong"), salt)
	if _, err := NewWalletStore(db, wrong); !errors.Is(err, domain.ErrKeyCorrupted) {
		t.Errorf("err = %v, want ErrKeyCorrupted", err)
	}
}

func TestWalletGroup_OpenFailure(t *testing.T) {
	db := newTestDB(t)
	s, _ := NewWalletStore(db, xorSealer{})
	_ = s.SaveWalletGroup(domain.WalletGroup{ID: "g", Chain: domain.ChainSolana, Keys: []domain.PrivateKey{[]byte("k")}})

	broken := &WalletStore{db: db, sealer: xorSealer{fail: true}}
	if _, err := broken.WalletGroup("g"); !errors.Is(err, domain.ErrKeyCorrupted) {
		t.Errorf("err = %v, want ErrKeyCorrupted", err)
	}
}
