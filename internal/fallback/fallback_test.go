package fallback

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"math/rand"
	"strings"
	"testing"

	"github.com/compumacy/visolearn-local/internal/domain"
)

func TestTopicKey(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"a friendly animal", "animal"},
		{"Pets playing", "animal"},
		{"a person reading", "person"},
		{"children at the park", "person"},
		{"mountain landscape", "nature"},
		{"a wooden toy", "object"},
		{"something abstract", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := topicKey(tt.topic); got != tt.want {
			t.Errorf("topicKey(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}

func TestPlaceholderChecklistBounds(t *testing.T) {
	m := New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		items := m.PlaceholderChecklist("a friendly animal")
		if len(items) < 5 || len(items) > 8 {
			t.Fatalf("expected 5-8 items, got %d", len(items))
		}
		seen := make(map[string]bool)
		for j, it := range items {
			if it.ID != j {
				t.Errorf("item %d has ID %d", j, it.ID)
			}
			if it.Identified {
				t.Errorf("fresh checklist item %q already identified", it.Detail)
			}
			if seen[it.Detail] {
				t.Errorf("duplicate detail %q", it.Detail)
			}
			seen[it.Detail] = true
		}
	}
}

func TestRespondToMessageIdentifiesDetail(t *testing.T) {
	m := New(rand.NewSource(1))
	checklist := []domain.ChecklistItem{
		{ID: 0, Detail: "Background color"},
		{ID: 1, Detail: "Main subject"},
	}

	reply, updated := m.RespondToMessage("I like the background here", checklist, 0, 5)
	if !updated[0].Identified {
		t.Error("expected the background detail to be identified")
	}
	if updated[1].Identified {
		t.Error("unmentioned detail must stay unidentified")
	}
	if !strings.Contains(reply, "Great job") {
		t.Errorf("expected praise, got %q", reply)
	}
	// Input slice untouched.
	if checklist[0].Identified {
		t.Error("caller's checklist mutated")
	}
}

func TestRespondToMessageShortWordsIgnored(t *testing.T) {
	m := New(rand.NewSource(1))
	checklist := []domain.ChecklistItem{{ID: 0, Detail: "Time of day"}}

	// "of" and "day" are too short to count as a match on their own.
	_, updated := m.RespondToMessage("day of", checklist, 0, 5)
	if updated[0].Identified {
		t.Error("short-word match should not identify a detail")
	}
}

func TestRespondToMessageHintsWhenNothingFound(t *testing.T) {
	m := New(rand.NewSource(1))
	checklist := []domain.ChecklistItem{
		{ID: 0, Detail: "Lighting effects"},
		{ID: 1, Detail: "Texture patterns"},
	}

	reply, updated := m.RespondToMessage("hmm", checklist, 0, 5)
	if domain.IdentifiedCount(updated) != 0 {
		t.Error("nothing should be identified")
	}
	if !strings.Contains(reply, "Good try") {
		t.Errorf("expected a hint reply, got %q", reply)
	}
}

func TestRespondToMessageAllIdentified(t *testing.T) {
	m := New(rand.NewSource(1))
	checklist := []domain.ChecklistItem{
		{ID: 0, Detail: "Main subject", Identified: true},
	}

	reply, _ := m.RespondToMessage("anything", checklist, 0, 5)
	if !strings.Contains(reply, "all the details") {
		t.Errorf("expected the all-identified reply, got %q", reply)
	}
}

func TestRespondToMessageLastAttemptNotice(t *testing.T) {
	m := New(rand.NewSource(1))
	checklist := []domain.ChecklistItem{{ID: 0, Detail: "Lighting effects"}}

	reply, _ := m.RespondToMessage("hmm", checklist, 2, 3)
	if !strings.Contains(reply, "last attempt") {
		t.Errorf("expected the last-attempt notice, got %q", reply)
	}

	reply, _ = m.RespondToMessage("hmm", checklist, 0, 3)
	if strings.Contains(reply, "last attempt") {
		t.Errorf("notice must only appear on the final attempt, got %q", reply)
	}
}

func TestPlaceholderImageDecodes(t *testing.T) {
	img, err := PlaceholderImage()
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(img.URL, prefix) {
		t.Fatalf("unexpected URL prefix: %.40s", img.URL)
	}
	if img.MimeType != "image/png" {
		t.Errorf("unexpected mime type %q", img.MimeType)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(img.URL, prefix))
	if err != nil {
		t.Fatalf("payload is not valid base64: %v", err)
	}
	if img.Size != len(raw) {
		t.Errorf("size %d does not match payload length %d", img.Size, len(raw))
	}
	decoded, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("payload is not a valid PNG: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 512 || b.Dy() != 512 {
		t.Errorf("unexpected dimensions %dx%d", b.Dx(), b.Dy())
	}
}

func TestChecklistHTMLEscapesAndMarks(t *testing.T) {
	items := []domain.ChecklistItem{
		{ID: 0, Detail: "Main subject", Identified: true},
		{ID: 1, Detail: "<script>alert(1)</script>"},
	}
	out := ChecklistHTML(items)
	if !strings.Contains(out, `class="checklist-item identified"`) {
		t.Error("identified item missing its class")
	}
	if !strings.Contains(out, `class="checklist-item not-identified"`) {
		t.Error("unidentified item missing its class")
	}
	if strings.Contains(out, "<script>") {
		t.Error("detail text must be escaped")
	}
	if !strings.Contains(out, "&lt;script&gt;") {
		t.Error("expected escaped detail text")
	}
}

func TestProgressHTML(t *testing.T) {
	items := []domain.ChecklistItem{
		{Identified: true},
		{Identified: true},
		{},
		{},
	}
	out := ProgressHTML(items)
	if !strings.Contains(out, "2/4") || !strings.Contains(out, "50.0%") {
		t.Errorf("unexpected progress fragment %q", out)
	}
	if out := ProgressHTML(nil); !strings.Contains(out, "No active session") {
		t.Errorf("unexpected empty-state fragment %q", out)
	}
}

func TestAttemptCounterHTMLCapsAtLimit(t *testing.T) {
	if out := AttemptCounterHTML(2, 3); !strings.Contains(out, "2/3") {
		t.Errorf("unexpected fragment %q", out)
	}
	if out := AttemptCounterHTML(7, 3); !strings.Contains(out, "3/3") {
		t.Errorf("display must cap at the limit, got %q", out)
	}
}

func TestDifficultyLabel(t *testing.T) {
	tests := []struct {
		level     domain.SupportLevel
		threshold int
		want      string
	}{
		{domain.SupportLevel3, 70, "Very Simple"},
		{domain.SupportLevel2, 70, "Simple"},
		{domain.SupportLevel1, 70, "Moderate"},
		{domain.SupportLevel1, 85, "Detailed"},
	}
	for _, tt := range tests {
		settings := domain.DefaultSettings()
		settings.SupportLevel = tt.level
		settings.DetailsThreshold = tt.threshold
		if got := DifficultyLabel(settings); got != tt.want {
			t.Errorf("DifficultyLabel(%s, %d) = %q, want %q", tt.level, tt.threshold, got, tt.want)
		}
	}
}
