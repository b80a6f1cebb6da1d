package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/normalize"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/wallet"
)

// SessionManager defines the wallet session operations the session handler
// requires. *wallet.Manager satisfies it.
type SessionManager interface {
	Session() domain.WalletSession
	Connect(ctx context.Context) (domain.WalletSession, error)
	Disconnect()
	SwitchNetwork(ctx context.Context, chainID uint64) error
}

// SessionHandler serves wallet session endpoints.
type SessionHandler struct {
	sessions SessionManager
	logger   *slog.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(sessions SessionManager, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   logHandler(logger, "session"),
	}
}

// sessionResponse is the JSON shape of a WalletSession.
type sessionResponse struct {
	Account   string `json:"account"`
	ChainID   uint64 `json:"chainId"`
	Network   string `json:"network,omitempty"`
	State     string `json:"state"`
	Supported bool   `json:"supported"`
}

func newSessionResponse(s domain.WalletSession) sessionResponse {
	resp := sessionResponse{
		Account: s.Account,
		ChainID: s.ChainID,
		State:   s.State().String(),
	}
	if s.ChainID != 0 {
		resp.Network = wallet.NetworkName(s.ChainID)
		resp.Supported = wallet.IsSupported(s.ChainID)
	}
	return resp
}

// GetSession returns the current session.
// GET /api/session
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newSessionResponse(h.sessions.Session()))
}

// Connect asks the wallet for account access.
// POST /api/session/connect
func (h *SessionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Connect(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrProviderUnavailable) {
			writeJSON(w, http.StatusPreconditionFailed, map[string]string{
				"error":   err.Error(),
				"kind":    domain.ErrorKind(err),
				"install": wallet.InstallURL,
			})
			return
		}
		writeDomainError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(s))
}

// Disconnect clears the session.
// POST /api/session/disconnect
func (h *SessionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	h.sessions.Disconnect()
	writeJSON(w, http.StatusOK, newSessionResponse(h.sessions.Session()))
}

type switchNetworkRequest struct {
	ChainID json.RawMessage `json:"chainId"`
}

// SwitchNetwork asks the wallet to change chains. The session follows once
// the wallet reports the change, so the response is 202.
// POST /api/session/network
func (h *SessionHandler) SwitchNetwork(w http.ResponseWriter, r *http.Request) {
	var req switchNetworkRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, err, nil)
		return
	}
	chainID, err := parseChainID(req.ChainID)
	if err != nil {
		writeDomainError(w, err, nil)
		return
	}
	if err := h.sessions.SwitchNetwork(r.Context(), chainID); err != nil {
		h.logger.WarnContext(r.Context(), "switch network failed",
			slog.Uint64("chain_id", chainID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"requestedChainId": chainID,
		"network":          wallet.NetworkName(chainID),
	})
}

// ListNetworks returns the supported networks.
// GET /api/networks
func (h *SessionHandler) ListNetworks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"networks": wallet.Networks()})
}

// parseChainID accepts a decimal number or a decimal/hex string.
func parseChainID(raw json.RawMessage) (uint64, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("chainId is required: %w", domain.ErrMalformedValue)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return normalize.ChainID(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return normalize.ChainID(string(n))
	}
	return 0, fmt.Errorf("chainId %s: %w", string(raw), domain.ErrMalformedValue)
}
