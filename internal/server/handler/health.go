package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
)

// Viewer exposes the current wallet session. *wallet.Manager satisfies it.
type Viewer interface {
	Session() domain.WalletSession
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	mode      string
	contract  string
	viewer    Viewer
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler. viewer may be nil.
func NewHealthHandler(mode, contract string, viewer Viewer, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		mode:      mode,
		contract:  contract,
		viewer:    viewer,
		startedAt: time.Now().UTC(),
		logger:    logger,
	}
}

// HealthCheck responds with a JSON status indicating the server is alive and
// which session it is serving.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":        "ok",
		"mode":          h.mode,
		"contract":      h.contract,
		"uptimeSeconds": int64(time.Since(h.startedAt).Seconds()),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	}
	if h.viewer != nil {
		s := h.viewer.Session()
		resp["session"] = s.State().String()
		resp["chainId"] = s.ChainID
	}
	writeJSON(w, http.StatusOK, resp)
}
