package session

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/compumacy/visolearn-local/internal/domain"
)

// ParseChecklistHTML extracts checklist items from the rendered fragment the
// remote returns. Each item is a div.checklist-item whose class carries the
// identified state and whose last span holds the detail text. The local
// fallback renderer emits the same shape, so both sources parse identically.
func ParseChecklistHTML(fragment string) ([]domain.ChecklistItem, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil, err
	}

	var items []domain.ChecklistItem
	doc.Find("div.checklist-item").Each(func(i int, sel *goquery.Selection) {
		detail := strings.TrimSpace(sel.Find("span").Last().Text())
		if detail == "" {
			return
		}
		items = append(items, domain.ChecklistItem{
			ID:         len(items),
			Detail:     detail,
			Identified: sel.HasClass("identified"),
		})
	})
	return items, nil
}
