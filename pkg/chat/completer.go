package chat

import (
	"log/slog"

	"ChatPane/pkg/services"
)

// PickCompleter returns g when it can reach the API and the offline
// LocalCompleter otherwise.
func PickCompleter(g *services.GeminiService, logger *slog.Logger) Completer {
	if err := g.Ready(); err != nil {
		logger.Warn("using offline completer", "reason", err)
		return services.NewLocalCompleter()
	}
	return g
}
