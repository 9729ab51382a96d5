package engine

import (
	"context"
	"log/slog"

	"github.com/alejandrodnm/pegbot/internal/domain"
	"github.com/alejandrodnm/pegbot/internal/ports"
)

// Emit entrega un evento al notifier. Los errores de entrega se loguean y
// nunca se propagan: la notificación es fire-and-forget para el engine.
func Emit(ctx context.Context, n ports.Notifier, ev domain.Event) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, ev); err != nil {
		slog.Warn("sync: notify failed",
			"kind", string(ev.Kind),
			"account", ev.AccountID,
			"order", ev.OrderID,
			"err", err,
		)
	}
}

// Stopped reporta si la señal de parada ya se disparó, sin bloquear.
func Stopped(stop <-chan struct{}) bool {
	if stop == nil {
		return false
	}
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// TruncateStr trunca un string a maxLen caracteres añadiendo "..." si es necesario.
// Los venue ids son hashes largos; se acortan en los logs.
func TruncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
