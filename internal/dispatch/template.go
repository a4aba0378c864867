package dispatch

import (
	"strings"

	"github.com/postflow/engage/internal/entities"
)

// renderTemplate substitutes the supported placeholders in static response
// content. Unknown placeholders are left as-is rather than erased, so a
// typo is visible in the sent text instead of silently disappearing.
func renderTemplate(content string, event *entities.Event) string {
	if !strings.Contains(content, "{") {
		return content
	}
	r := strings.NewReplacer(
		"{username}", event.ActorUsername,
		"{comment}", event.Text,
	)
	return r.Replace(content)
}
