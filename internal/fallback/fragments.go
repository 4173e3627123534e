package fallback

import (
	"fmt"
	"html"
	"strings"

	"github.com/compumacy/visolearn-local/internal/domain"
)

// ChecklistHTML renders the checklist in the same fragment shape the remote
// uses, so the UI and the fragment parser treat both sources identically.
func ChecklistHTML(items []domain.ChecklistItem) string {
	var b strings.Builder
	b.WriteString(`<div id="checklist-container">`)
	for _, it := range items {
		class := "not-identified"
		mark := "❌"
		if it.Identified {
			class = "identified"
			mark = "✅"
		}
		fmt.Fprintf(&b, `<div class="checklist-item %s"><span class="checkmark">%s</span><span>%s</span></div>`,
			class, mark, html.EscapeString(it.Detail))
	}
	b.WriteString(`</div>`)
	return b.String()
}

// ProgressHTML renders the identified/total summary fragment.
func ProgressHTML(items []domain.ChecklistItem) string {
	if len(items) == 0 {
		return `<div class="progress">No active session or no details to identify.</div>`
	}
	identified := domain.IdentifiedCount(items)
	pct := float64(identified) / float64(len(items)) * 100
	return fmt.Sprintf(`<div class="progress">Progress: %d/%d details (%.1f%%)</div>`,
		identified, len(items), pct)
}

// AttemptCounterHTML renders the attempts-used fragment. The displayed count
// never exceeds the limit.
func AttemptCounterHTML(attemptCount, attemptLimit int) string {
	display := attemptCount
	if attemptLimit > 0 && display > attemptLimit {
		display = attemptLimit
	}
	return fmt.Sprintf(`<div class="attempts">Attempts: %d/%d</div>`, display, attemptLimit)
}

// DifficultyLabel derives a coarse difficulty label from the settings,
// standing in for the remote's own labelling.
func DifficultyLabel(settings domain.SessionSettings) string {
	switch settings.SupportLevel {
	case domain.SupportLevel3:
		return "Very Simple"
	case domain.SupportLevel2:
		return "Simple"
	default:
		if settings.DetailsThreshold >= 80 {
			return "Detailed"
		}
		return "Moderate"
	}
}
