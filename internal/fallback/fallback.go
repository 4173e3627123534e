// Package fallback provides the degraded local mode used when the remote
// service cannot be reached or misbehaves. Images are flat placeholders,
// checklists come from a small topic-keyed vocabulary, and chat replies are
// driven by simple word matching. Everything here is deterministic for a
// given random source so tests can pin outputs.
package fallback

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/compumacy/visolearn-local/internal/domain"
)

var genericDetails = []string{
	"Background color",
	"Main subject",
	"Foreground elements",
	"Lighting effects",
	"Shadows and highlights",
	"Texture patterns",
	"Color scheme",
}

var topicDetails = map[string][]string{
	"animal": {"Animal type", "Animal posture", "Animal coloring", "Habitat elements", "Animal features"},
	"person": {"Person's expression", "Clothing items", "Posture or pose", "Hair style", "Action being performed"},
	"nature": {"Type of landscape", "Plant life", "Weather conditions", "Time of day", "Natural features"},
	"object": {"Object shape", "Object purpose", "Object material", "Object size", "Object color"},
}

// topicKey maps a free-form topic to one of the detail vocabularies.
func topicKey(topic string) string {
	words := strings.Fields(strings.ToLower(topic))
	for _, w := range words {
		switch w {
		case "animal", "animals", "pet", "pets", "wildlife":
			return "animal"
		case "person", "people", "child", "children", "family":
			return "person"
		case "nature", "landscape", "tree", "forest", "mountain", "ocean":
			return "nature"
		case "object", "toy", "item", "tool":
			return "object"
		}
	}
	return ""
}

// Mode generates placeholder content in degraded mode. The zero value is not
// usable; construct with New.
type Mode struct {
	rng *rand.Rand
}

// New returns a Mode seeded from src. Pass a fixed-seed source in tests.
func New(src rand.Source) *Mode {
	return &Mode{rng: rand.New(src)}
}

// PlaceholderChecklist builds a checklist of 5-8 details seeded from the
// topic, mirroring what the remote would produce for a generated image.
func (m *Mode) PlaceholderChecklist(topic string) []domain.ChecklistItem {
	pool := append([]string{}, topicDetails[topicKey(topic)]...)
	pool = append(pool, genericDetails...)

	n := 5 + m.rng.Intn(4)
	if n > len(pool) {
		n = len(pool)
	}
	m.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	items := make([]domain.ChecklistItem, n)
	for i := 0; i < n; i++ {
		items[i] = domain.ChecklistItem{ID: i, Detail: pool[i]}
	}
	return items
}

// RespondToMessage scores one child message against the checklist and builds
// a teacher-style reply. It returns the updated checklist; already identified
// items are never cleared.
func (m *Mode) RespondToMessage(message string, checklist []domain.ChecklistItem, attemptCount, attemptLimit int) (string, []domain.ChecklistItem) {
	updated := make([]domain.ChecklistItem, len(checklist))
	copy(updated, checklist)

	lower := strings.ToLower(message)
	newlyIdentified := 0
	for i := range updated {
		if updated[i].Identified {
			continue
		}
		for _, word := range strings.Fields(strings.ToLower(updated[i].Detail)) {
			// Short words match too easily to mean anything.
			if len(word) > 3 && strings.Contains(lower, word) {
				updated[i].Identified = true
				newlyIdentified++
				break
			}
		}
	}

	var reply string
	switch {
	case newlyIdentified == 1:
		reply = "Great job! You identified 1 new detail."
	case newlyIdentified > 1:
		reply = fmt.Sprintf("Great job! You identified %d new details. Your observation skills are excellent!", newlyIdentified)
	default:
		var remaining []string
		for _, it := range updated {
			if !it.Identified {
				remaining = append(remaining, it.Detail)
			}
		}
		if len(remaining) == 0 {
			reply = "Wonderful! You've identified all the details in this image."
		} else {
			hint := remaining[m.rng.Intn(len(remaining))]
			reply = fmt.Sprintf("Good try! Can you tell me more about the %s?", strings.ToLower(hint))
		}
	}

	if attemptLimit > 0 && attemptCount+1 >= attemptLimit && domain.IdentifiedCount(updated) < len(updated) {
		reply += "\n\nThis is your last attempt. After this, we'll move to a new image."
	}
	return reply, updated
}
