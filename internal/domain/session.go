// Package domain contains core domain types for the VisoLearn local interface.
package domain

import (
	"fmt"
	"time"
)

// SupportLevel is the autism support level configured for a session.
type SupportLevel string

const (
	SupportLevel1 SupportLevel = "Level 1"
	SupportLevel2 SupportLevel = "Level 2"
	SupportLevel3 SupportLevel = "Level 3"
)

// ImageStyle is the rendering style requested from the image generator.
type ImageStyle string

const (
	StyleRealistic    ImageStyle = "Realistic"
	StyleIllustration ImageStyle = "Illustration"
	StyleCartoon      ImageStyle = "Cartoon"
	StyleWatercolor   ImageStyle = "Watercolor"
	Style3DRendering  ImageStyle = "3D Rendering"
)

// SessionSettings holds the per-generation configuration supplied by the
// caregiver. Settings are immutable for the lifetime of one generated image.
type SessionSettings struct {
	Age              string       `json:"age"`
	SupportLevel     SupportLevel `json:"support_level"`
	TopicFocus       string       `json:"topic_focus"`
	TreatmentPlan    string       `json:"treatment_plan"`
	AttemptLimit     int          `json:"attempt_limit"`
	DetailsThreshold int          `json:"details_threshold"`
	ImageStyle       ImageStyle   `json:"image_style"`
}

// Validate checks settings before a generation request is issued.
func (s *SessionSettings) Validate() error {
	switch s.SupportLevel {
	case SupportLevel1, SupportLevel2, SupportLevel3:
	default:
		return fmt.Errorf("unknown support level %q", s.SupportLevel)
	}
	switch s.ImageStyle {
	case StyleRealistic, StyleIllustration, StyleCartoon, StyleWatercolor, Style3DRendering:
	default:
		return fmt.Errorf("unknown image style %q", s.ImageStyle)
	}
	if s.AttemptLimit <= 0 {
		return fmt.Errorf("attempt limit must be positive, got %d", s.AttemptLimit)
	}
	if s.DetailsThreshold <= 0 {
		return fmt.Errorf("details threshold must be positive, got %d", s.DetailsThreshold)
	}
	return nil
}

// DefaultSettings returns the settings the original app starts with.
func DefaultSettings() SessionSettings {
	return SessionSettings{
		Age:              "3",
		SupportLevel:     SupportLevel1,
		AttemptLimit:     3,
		DetailsThreshold: 70,
		ImageStyle:       StyleRealistic,
	}
}

// ImageData is a generated image as returned by the remote service:
// either a fetchable URL or an inline data URL, plus basic metadata.
type ImageData struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int    `json:"size,omitempty"`
}

// ChecklistItem is one detail the child is asked to identify in the image.
type ChecklistItem struct {
	ID         int    `json:"id"`
	Detail     string `json:"detail"`
	Identified bool   `json:"identified"`
}

// IdentifiedCount returns how many of the items have been identified.
func IdentifiedCount(items []ChecklistItem) int {
	n := 0
	for _, it := range items {
		if it.Identified {
			n++
		}
	}
	return n
}

// Session is one continuous interaction: a generated image plus the chat
// rounds describing it.
type Session struct {
	ID           string          `json:"id"`
	Settings     SessionSettings `json:"settings"`
	Image        *ImageData      `json:"image,omitempty"`
	Conversation Conversation    `json:"conversation"`
	Checklist    []ChecklistItem `json:"checklist"`
	AttemptCount int             `json:"attempt_count"`
	Degraded     bool            `json:"degraded"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// AttemptsExhausted reports whether the session has used up its allowed
// attempts without identifying everything.
func (s *Session) AttemptsExhausted() bool {
	if s.AttemptCount < s.Settings.AttemptLimit {
		return false
	}
	return IdentifiedCount(s.Checklist) < len(s.Checklist)
}
