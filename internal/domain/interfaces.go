package domain

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// EventSink receives task events. Emit must never block the caller;
// delivery is at-most-once.
type EventSink interface {
	Emit(evt Event)
}

// WalletGroupStore resolves wallet groups with their decrypted keys.
// Implemented by infra/sqlite.WalletStore.
type WalletGroupStore interface {
	WalletGroup(id string) (WalletGroup, error)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

// Emit calls f(evt).
func (f EventSinkFunc) Emit(evt Event) { f(evt) }
