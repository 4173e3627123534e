// Package session orchestrates user actions against the remote service: it
// owns the single live client handle, the process-wide fallback flag, and the
// one-remote-attempt-then-fallback policy. Every generate/chat result carries
// an explicit Degraded flag computed here, at the call boundary, so the UI
// never has to branch on errors.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/compumacy/visolearn-local/internal/artifacts"
	"github.com/compumacy/visolearn-local/internal/domain"
	"github.com/compumacy/visolearn-local/internal/fallback"
	"github.com/compumacy/visolearn-local/internal/remote"
	"github.com/compumacy/visolearn-local/internal/store"
	"github.com/google/uuid"
)

// ErrNotConnected is returned by operations that require a live remote
// handle (save/export) when none exists.
var ErrNotConnected = errors.New("not connected to the remote service")

// ErrFallbackUnavailable is returned by operations that have no local
// equivalent while fallback mode is active.
var ErrFallbackUnavailable = errors.New("not available in fallback mode")

// ErrNoSession is returned by operations that need an active session before
// any image has been generated.
var ErrNoSession = errors.New("no active session; generate an image first")

// ErrEmptyMessage is returned by Chat for a blank child message.
var ErrEmptyMessage = errors.New("message cannot be empty")

// Connector is the remote capability surface the service depends on.
// *remote.Client implements it; tests substitute fakes.
type Connector interface {
	Validate(ctx context.Context) bool
	GenerateImage(ctx context.Context, settings domain.SessionSettings) (domain.ImageData, error)
	ChatRespond(ctx context.Context, userMessage string) (remote.ChatPayload, error)
	SaveSessionLog(ctx context.Context) (string, error)
	SaveAllSessionImages(ctx context.Context) ([]domain.ImageData, error)
	ChecklistHTML(ctx context.Context) (string, error)
	ProgressHTML(ctx context.Context) (string, error)
	AttemptCounterHTML(ctx context.Context) (string, error)
	SessionsData(ctx context.Context) (json.RawMessage, error)
	DifficultyLabel(ctx context.Context) (string, error)
	Stage() string
}

var _ Connector = (*remote.Client)(nil)

// Dialer builds a new remote handle for a credential. Wraps remote.Dial in
// production.
type Dialer func(ctx context.Context, token string) (Connector, error)

// Status is the connection state pushed to the UI.
type Status struct {
	Connected bool   `json:"connected"`
	Fallback  bool   `json:"fallback"`
	Stage     string `json:"stage,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// Notifier receives status transitions. The WebSocket handler registers one.
type Notifier func(Status)

// Service coordinates the remote handle, the active session, and fallback
// substitution. All mutable state is guarded by mu; remote calls themselves
// happen outside the lock so a slow generation cannot block status reads.
type Service struct {
	dial   Dialer
	repo   store.Repository
	writer *artifacts.Writer
	fb     *fallback.Mode
	logger *slog.Logger

	mu         sync.Mutex
	client     Connector // nil when no handle is live
	fallbackOn bool
	lastError  string
	current    *domain.Session
	notifiers  []Notifier
}

// New creates a Service. dial must not be nil; repo and writer back the
// save/export operations.
func New(dial Dialer, repo store.Repository, writer *artifacts.Writer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		dial:   dial,
		repo:   repo,
		writer: writer,
		fb:     fallback.New(rand.NewSource(time.Now().UnixNano())),
		logger: logger,
	}
}

// SetFallbackSource replaces the randomness behind fallback content.
// Tests use a fixed seed.
func (s *Service) SetFallbackSource(src rand.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fb = fallback.New(src)
}

// Subscribe registers a notifier for status transitions.
func (s *Service) Subscribe(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifiers = append(s.notifiers, n)
}

// Connect dials a new handle for the credential and swaps it in atomically:
// the previous handle stays active until the new one has fully succeeded.
// A successful connect clears fallback mode.
func (s *Service) Connect(ctx context.Context, token string) error {
	client, err := s.dial(ctx, token)
	if err != nil {
		s.mu.Lock()
		s.lastError = err.Error()
		s.mu.Unlock()
		s.broadcast()
		return err
	}

	s.mu.Lock()
	s.client = client
	s.fallbackOn = false
	s.lastError = ""
	s.mu.Unlock()
	s.broadcast()
	return nil
}

// Validate wakes a dormant remote instance. Returns false when no handle is
// live or the instance did not come up within the bounded wait.
func (s *Service) Validate(ctx context.Context) bool {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return false
	}
	ok := client.Validate(ctx)
	s.broadcast()
	return ok
}

// SetFallback toggles fallback mode explicitly.
func (s *Service) SetFallback(on bool) {
	s.mu.Lock()
	s.fallbackOn = on
	s.mu.Unlock()
	s.broadcast()
}

// Status reports the current connection state.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Service) statusLocked() Status {
	st := Status{
		Connected: s.client != nil && !s.fallbackOn,
		Fallback:  s.fallbackOn,
		LastError: s.lastError,
	}
	if s.client != nil {
		st.Stage = s.client.Stage()
	}
	return st
}

func (s *Service) broadcast() {
	s.mu.Lock()
	st := s.statusLocked()
	notifiers := make([]Notifier, len(s.notifiers))
	copy(notifiers, s.notifiers)
	s.mu.Unlock()
	for _, n := range notifiers {
		n(st)
	}
}

// connector returns the live handle unless fallback mode is on.
func (s *Service) connector() Connector {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fallbackOn {
		return nil
	}
	return s.client
}

// noteDegraded records a recoverable remote failure that was absorbed into
// fallback output.
func (s *Service) noteDegraded(op string, err error) {
	s.logger.Warn("remote call failed, serving fallback", "op", op, "error", err)
	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()
	s.broadcast()
}

// GenerateResult is the outcome of one generate action. Conversation is
// always reset to empty with a zero identified count.
type GenerateResult struct {
	Session  domain.Session `json:"session"`
	Degraded bool           `json:"degraded"`
}

// Generate creates a new image and resets the chat. At most one remote
// attempt is made; any recoverable failure substitutes a local placeholder
// and flags the result degraded instead of surfacing the error.
func (s *Service) Generate(ctx context.Context, settings domain.SessionSettings) (GenerateResult, error) {
	if err := settings.Validate(); err != nil {
		return GenerateResult{}, err
	}

	sess := domain.Session{
		ID:        uuid.NewString(),
		Settings:  settings,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	client := s.connector()
	if client != nil {
		img, err := client.GenerateImage(ctx, settings)
		if err == nil {
			sess.Image = &img
			sess.Checklist = s.remoteChecklist(ctx, client, settings.TopicFocus)
			s.setCurrent(&sess)
			return GenerateResult{Session: sess}, nil
		}
		if !remote.Recoverable(err) {
			return GenerateResult{}, err
		}
		s.noteDegraded("generate_image", err)
	}

	img, err := fallback.PlaceholderImage()
	if err != nil {
		return GenerateResult{}, fmt.Errorf("render placeholder image: %w", err)
	}
	sess.Image = &img
	sess.Degraded = true
	s.mu.Lock()
	sess.Checklist = s.fb.PlaceholderChecklist(settings.TopicFocus)
	s.mu.Unlock()
	s.setCurrent(&sess)
	return GenerateResult{Session: sess, Degraded: true}, nil
}

// remoteChecklist fetches and parses the checklist fragment for a freshly
// generated image. Best effort: on any failure the placeholder list stands
// in so the session always has details to identify.
func (s *Service) remoteChecklist(ctx context.Context, client Connector, topic string) []domain.ChecklistItem {
	fragment, err := client.ChecklistHTML(ctx)
	if err == nil {
		if items, parseErr := ParseChecklistHTML(fragment); parseErr == nil && len(items) > 0 {
			return items
		}
	} else {
		s.logger.Warn("checklist fragment unavailable", "error", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fb.PlaceholderChecklist(topic)
}

func (s *Service) setCurrent(sess *domain.Session) {
	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()
}

// Current returns a copy of the active session, or nil if no image has been
// generated yet.
func (s *Service) Current() *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	copied := *s.current
	return &copied
}

// ChatResult is the outcome of one chat round-trip. The conversation is the
// caller's, with the new exchange appended.
type ChatResult struct {
	Conversation domain.Conversation    `json:"conversation"`
	Checklist    []domain.ChecklistItem `json:"checklist"`
	AttemptCount int                    `json:"attempt_count"`
	Image        *domain.ImageData      `json:"image,omitempty"`
	Degraded     bool                   `json:"degraded"`
}

// Chat submits one child message. The conversation is owned by the caller
// and passed back in on every call; it is mutated only by appending this
// round-trip. The identified-detail count never decreases within a session.
func (s *Service) Chat(ctx context.Context, conv domain.Conversation, userMessage string) (ChatResult, error) {
	if userMessage == "" {
		return ChatResult{}, ErrEmptyMessage
	}

	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	if current == nil {
		return ChatResult{}, ErrNoSession
	}

	client := s.connector()
	if client != nil {
		payload, err := client.ChatRespond(ctx, userMessage)
		if err == nil {
			return s.applyRemoteChat(ctx, client, conv, userMessage, payload), nil
		}
		if !remote.Recoverable(err) {
			return ChatResult{}, err
		}
		s.noteDegraded("chat_respond", err)
	}

	return s.applyFallbackChat(conv, userMessage), nil
}

func (s *Service) applyRemoteChat(ctx context.Context, client Connector, conv domain.Conversation, userMessage string, payload remote.ChatPayload) ChatResult {
	conv.Append(userMessage, payload.Reply)
	if payload.IdentifiedCount > conv.IdentifiedCount {
		conv.IdentifiedCount = payload.IdentifiedCount
	}

	s.mu.Lock()
	current := s.current
	if current.AttemptCount < current.Settings.AttemptLimit {
		current.AttemptCount++
	}
	current.Conversation = conv
	current.UpdatedAt = time.Now().UTC()
	if payload.Image != nil {
		current.Image = payload.Image
	}
	attempts := current.AttemptCount
	prior := current.Checklist
	s.mu.Unlock()

	// Mid-session the current checklist is better than a fresh placeholder:
	// replacing it would erase details the child has already identified.
	checklist := prior
	if fragment, err := client.ChecklistHTML(ctx); err == nil {
		if items, parseErr := ParseChecklistHTML(fragment); parseErr == nil && len(items) > 0 {
			checklist = items
		}
	} else {
		s.logger.Warn("checklist fragment unavailable, keeping current checklist", "error", err)
	}
	s.mu.Lock()
	current.Checklist = checklist
	s.mu.Unlock()

	return ChatResult{
		Conversation: conv,
		Checklist:    checklist,
		AttemptCount: attempts,
		Image:        payload.Image,
	}
}

func (s *Service) applyFallbackChat(conv domain.Conversation, userMessage string) ChatResult {
	s.mu.Lock()
	current := s.current
	reply, updated := s.fb.RespondToMessage(userMessage, current.Checklist, current.AttemptCount, current.Settings.AttemptLimit)
	conv.Append(userMessage, reply)
	if n := domain.IdentifiedCount(updated); n > conv.IdentifiedCount {
		conv.IdentifiedCount = n
	}
	if current.AttemptCount < current.Settings.AttemptLimit {
		current.AttemptCount++
	}
	current.Checklist = updated
	current.Conversation = conv
	current.Degraded = true
	current.UpdatedAt = time.Now().UTC()
	attempts := current.AttemptCount
	s.mu.Unlock()

	return ChatResult{
		Conversation: conv,
		Checklist:    updated,
		AttemptCount: attempts,
		Degraded:     true,
	}
}
