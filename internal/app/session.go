package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
)

const sessionSideEffectTimeout = 5 * time.Second

// watchSession fans session transitions out to the rest of the host. A
// network change or any event flagged ResetRequired drops every cached read,
// since cached items belong to the previous chain or account.
func (a *App) watchSession(deps *Dependencies) (cancel func()) {
	logger := a.logger.With(slog.String("component", "session_observer"))

	return deps.Wallet.Subscribe(func(ev domain.SessionEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), sessionSideEffectTimeout)
		defer cancel()

		logger.InfoContext(ctx, "wallet session changed",
			slog.String("kind", string(ev.Kind)),
			slog.String("account", ev.Session.Account),
			slog.Uint64("chain_id", ev.Session.ChainID),
			slog.Bool("reset_required", ev.ResetRequired),
		)

		if ev.ResetRequired || ev.Kind == domain.SessionEventNetworkChanged ||
			ev.Kind == domain.SessionEventAccountChanged {
			if err := deps.ReadCache.Flush(ctx); err != nil {
				logger.WarnContext(ctx, "flush read cache failed", slog.String("error", err.Error()))
			}
		}

		if deps.Metrics != nil {
			deps.Metrics.ObserveSession(ev)
		}

		if payload, err := json.Marshal(ev); err == nil {
			if err := deps.EventBus.Publish(ctx, domain.ChannelSession, payload); err != nil {
				logger.WarnContext(ctx, "publish session event failed", slog.String("error", err.Error()))
			}
		}

		if deps.AuditStore != nil {
			detail := map[string]any{
				"account":  ev.Session.Account,
				"chain_id": ev.Session.ChainID,
				"previous": ev.Previous.Account,
				"reset":    ev.ResetRequired,
			}
			if err := deps.AuditStore.Log(ctx, "session_"+string(ev.Kind), detail); err != nil {
				logger.WarnContext(ctx, "audit session event failed", slog.String("error", err.Error()))
			}
		}
	})
}
