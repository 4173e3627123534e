package session

import (
	"context"
	"encoding/json"

	"github.com/compumacy/visolearn-local/internal/domain"
	"github.com/compumacy/visolearn-local/internal/fallback"
)

// Fragment accessors. These mirror the remote's derived read-only endpoints:
// no side effects, idempotent for identical state. When the remote is
// unavailable the fragment is rendered locally from the active session, so
// the accessors themselves never fail.

// ChecklistFragment returns the rendered checklist fragment.
func (s *Service) ChecklistFragment(ctx context.Context) string {
	if client := s.connector(); client != nil {
		fragment, err := client.ChecklistHTML(ctx)
		if err == nil {
			return fragment
		}
		s.logger.Warn("checklist fragment unavailable, rendering locally", "error", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return fallback.ChecklistHTML(nil)
	}
	return fallback.ChecklistHTML(s.current.Checklist)
}

// ProgressFragment returns the rendered progress fragment.
func (s *Service) ProgressFragment(ctx context.Context) string {
	if client := s.connector(); client != nil {
		fragment, err := client.ProgressHTML(ctx)
		if err == nil {
			return fragment
		}
		s.logger.Warn("progress fragment unavailable, rendering locally", "error", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return fallback.ProgressHTML(nil)
	}
	return fallback.ProgressHTML(s.current.Checklist)
}

// AttemptFragment returns the rendered attempt counter fragment.
func (s *Service) AttemptFragment(ctx context.Context) string {
	if client := s.connector(); client != nil {
		fragment, err := client.AttemptCounterHTML(ctx)
		if err == nil {
			return fragment
		}
		s.logger.Warn("attempt fragment unavailable, rendering locally", "error", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return fallback.AttemptCounterHTML(0, 0)
	}
	return fallback.AttemptCounterHTML(s.current.AttemptCount, s.current.Settings.AttemptLimit)
}

// DifficultyFragment returns the current difficulty label.
func (s *Service) DifficultyFragment(ctx context.Context) string {
	if client := s.connector(); client != nil {
		label, err := client.DifficultyLabel(ctx)
		if err == nil {
			return label
		}
		s.logger.Warn("difficulty label unavailable, deriving locally", "error", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return fallback.DifficultyLabel(domain.DefaultSettings())
	}
	return fallback.DifficultyLabel(s.current.Settings)
}

// SessionsData returns the saved-session summary: the remote's own when
// connected, otherwise the locally persisted sessions.
func (s *Service) SessionsData(ctx context.Context) (json.RawMessage, error) {
	if client := s.connector(); client != nil {
		data, err := client.SessionsData(ctx)
		if err == nil {
			return data, nil
		}
		s.logger.Warn("remote sessions data unavailable, listing local", "error", err)
	}
	sessions, err := s.repo.ListSessions(ctx, 50)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []*domain.Session{}
	}
	return json.Marshal(sessions)
}
