package session

import (
	"context"
	"fmt"
	"time"
)

// SaveLog exports the session log: the remote's log text is fetched first,
// then the log file is written locally and the session is persisted. Export
// has no local equivalent, so failures propagate as blocking errors and the
// operation is refused outright in fallback mode.
func (s *Service) SaveLog(ctx context.Context) (string, error) {
	s.mu.Lock()
	current := s.current
	fallbackOn := s.fallbackOn
	client := s.client
	s.mu.Unlock()

	if current == nil {
		return "", ErrNoSession
	}
	if fallbackOn {
		return "", fmt.Errorf("save session log: %w", ErrFallbackUnavailable)
	}
	if client == nil {
		return "", fmt.Errorf("save session log: %w", ErrNotConnected)
	}

	remoteLog, err := client.SaveSessionLog(ctx)
	if err != nil {
		return "", fmt.Errorf("save session log: %w", err)
	}

	s.mu.Lock()
	current.UpdatedAt = time.Now().UTC()
	snapshot := *current
	s.mu.Unlock()

	path, err := s.writer.WriteLog(&snapshot, remoteLog)
	if err != nil {
		return "", fmt.Errorf("save session log: %w", err)
	}
	if err := s.repo.SaveSession(ctx, &snapshot); err != nil {
		return "", fmt.Errorf("persist session: %w", err)
	}
	return path, nil
}

// SaveImages exports every image of the current remote session to the local
// session directory. Same blocking-error contract as SaveLog.
func (s *Service) SaveImages(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	current := s.current
	fallbackOn := s.fallbackOn
	client := s.client
	s.mu.Unlock()

	if current == nil {
		return nil, ErrNoSession
	}
	if fallbackOn {
		return nil, fmt.Errorf("save session images: %w", ErrFallbackUnavailable)
	}
	if client == nil {
		return nil, fmt.Errorf("save session images: %w", ErrNotConnected)
	}

	images, err := client.SaveAllSessionImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("save session images: %w", err)
	}

	paths, err := s.writer.WriteImages(ctx, current.ID, images)
	if err != nil {
		return nil, fmt.Errorf("save session images: %w", err)
	}
	return paths, nil
}
