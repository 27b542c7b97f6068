package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tide-labs/tide/internal/domain"
)

// ─── Wallet Groups (/api/wallet-groups) ──────────────────────────────────────

type importWalletGroupRequest struct {
	ID    string       `json:"id,omitempty"`
	Name  string       `json:"name"`
	Chain domain.Chain `json:"chain"`
	Keys  []string     `json:"keys"`
}

func (s *Server) handleListWalletGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.wallets.ListWalletGroups()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if groups == nil {
		groups = []domain.WalletGroupSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"wallet_groups": groups})
}

// handleImportWalletGroup stores a group. Keys are parsed per chain and
// sealed by the store; they are never echoed back.
func (s *Server) handleImportWalletGroup(w http.ResponseWriter, r *http.Request) {
	var req importWalletGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decode wallet group: "+err.Error())
		return
	}
	if req.Chain != domain.ChainSolana && !req.Chain.IsEVM() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown chain %q", req.Chain))
		return
	}

	g := domain.WalletGroup{ID: req.ID, Name: req.Name, Chain: req.Chain}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	for i, k := range req.Keys {
		key, err := s.parseKey(req.Chain, k)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("key %d: %v", i, err))
			return
		}
		g.Keys = append(g.Keys, key)
	}

	if err := s.wallets.SaveWalletGroup(g); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.Info("wallet group imported",
		zap.String("group", g.ID),
		zap.String("chain", string(g.Chain)),
		zap.Int("wallets", len(g.Keys)))
	writeJSON(w, http.StatusCreated, domain.WalletGroupSummary{
		ID: g.ID, Name: g.Name, Chain: g.Chain, Wallets: len(g.Keys),
	})
}

func (s *Server) handleDeleteWalletGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.wallets.DeleteWalletGroup(chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
