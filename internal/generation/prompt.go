package generation

import (
	"strings"

	"github.com/dvloznov/bank-assistant/internal/domain"
)

// BuildPrompt renders the conversation window followed by the current query
// as a plain-text transcript ending with an open assistant turn.
func BuildPrompt(window []domain.Turn, query string) string {
	var b strings.Builder
	for _, t := range window {
		b.WriteString(string(t.Role) + ": " + strings.TrimSpace(t.Content) + "\n")
	}
	b.WriteString(string(domain.RoleUser) + ": " + strings.TrimSpace(query) + "\n")
	b.WriteString(string(domain.RoleAssistant) + ":")
	return b.String()
}
