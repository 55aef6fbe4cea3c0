package chat

import (
	"strings"

	"ChatPane/models"
	"ChatPane/pkg/services"
)

// BuildHistory converts messages to model turns, merging consecutive
// messages of the same role into one multi-part turn. Messages without text,
// such as a reply that streamed nothing, are left out.
func BuildHistory(msgs []models.Message) []services.ChatTurn {
	var turns []services.ChatTurn
	for _, m := range msgs {
		if m.Role != models.RoleUser && m.Role != models.RoleModel {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := string(m.Role)
		if n := len(turns); n > 0 && turns[n-1].Role == role {
			turns[n-1].Parts = append(turns[n-1].Parts, m.Content)
			continue
		}
		turns = append(turns, services.ChatTurn{Role: role, Parts: []string{m.Content}})
	}
	return turns
}
