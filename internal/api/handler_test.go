package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/compumacy/visolearn-local/internal/artifacts"
	"github.com/compumacy/visolearn-local/internal/domain"
	"github.com/compumacy/visolearn-local/internal/remote"
	"github.com/compumacy/visolearn-local/internal/session"
	"github.com/compumacy/visolearn-local/internal/store"
	"github.com/go-chi/chi/v5"
)

// stubConnector is a healthy remote for route tests.
type stubConnector struct {
	generateErr error
	chatErr     error
}

func (c *stubConnector) Validate(ctx context.Context) bool { return true }

func (c *stubConnector) GenerateImage(ctx context.Context, s domain.SessionSettings) (domain.ImageData, error) {
	if c.generateErr != nil {
		return domain.ImageData{}, c.generateErr
	}
	return domain.ImageData{URL: "https://example.com/img.png"}, nil
}

func (c *stubConnector) ChatRespond(ctx context.Context, msg string) (remote.ChatPayload, error) {
	if c.chatErr != nil {
		return remote.ChatPayload{}, c.chatErr
	}
	return remote.ChatPayload{Reply: "Great job!", IdentifiedCount: 1}, nil
}

func (c *stubConnector) SaveSessionLog(ctx context.Context) (string, error) {
	return "remote log", nil
}

func (c *stubConnector) SaveAllSessionImages(ctx context.Context) ([]domain.ImageData, error) {
	return nil, nil
}

func (c *stubConnector) ChecklistHTML(ctx context.Context) (string, error) {
	return `<div class="checklist-item not-identified"><span class="checkmark">❌</span><span>Main subject</span></div>`, nil
}

func (c *stubConnector) ProgressHTML(ctx context.Context) (string, error) {
	return `<div class="progress">Progress: 0/1 details (0.0%)</div>`, nil
}

func (c *stubConnector) AttemptCounterHTML(ctx context.Context) (string, error) {
	return `<div class="attempts">Attempts: 0/3</div>`, nil
}

func (c *stubConnector) SessionsData(ctx context.Context) (json.RawMessage, error) {
	return json.RawMessage(`[{"id":"remote-1"}]`), nil
}

func (c *stubConnector) DifficultyLabel(ctx context.Context) (string, error) {
	return "Moderate", nil
}

func (c *stubConnector) Stage() string { return "RUNNING" }

type memRepo struct {
	sessions map[string]*domain.Session
}

func newMemRepo() *memRepo { return &memRepo{sessions: make(map[string]*domain.Session)} }

func (r *memRepo) SaveSession(ctx context.Context, sess *domain.Session) error {
	copied := *sess
	r.sessions[sess.ID] = &copied
	return nil
}

func (r *memRepo) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	return r.sessions[id], nil
}

func (r *memRepo) ListSessions(ctx context.Context, limit int) ([]*domain.Session, error) {
	var out []*domain.Session
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (r *memRepo) DeleteSession(ctx context.Context, id string) error {
	delete(r.sessions, id)
	return nil
}

func (r *memRepo) CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	return 0, nil
}

func (r *memRepo) Ping(ctx context.Context) error { return nil }
func (r *memRepo) Close() error                   { return nil }

var _ store.Repository = (*memRepo)(nil)

type testEnv struct {
	router http.Handler
	svc    *session.Service
	repo   *memRepo
}

func newTestEnv(t *testing.T, conn session.Connector, dialErr error) *testEnv {
	t.Helper()
	dial := func(ctx context.Context, token string) (session.Connector, error) {
		if dialErr != nil {
			return nil, dialErr
		}
		return conn, nil
	}
	repo := newMemRepo()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := session.New(dial, repo, artifacts.NewWriter(t.TempDir()), logger)

	r := chi.NewRouter()
	NewHandler(svc, repo).RegisterRoutes(r)
	return &testEnv{router: r, svc: svc, repo: repo}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t, &stubConnector{}, nil)

	rec := env.do(t, http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	st := decode[session.Status](t, rec)
	if st.Connected {
		t.Error("expected disconnected before any connect")
	}
}

func TestConnectSuccess(t *testing.T) {
	env := newTestEnv(t, &stubConnector{}, nil)

	rec := env.do(t, http.MethodPost, "/api/connect", map[string]string{"token": "hf_x"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	st := decode[session.Status](t, rec)
	if !st.Connected || st.Stage != "RUNNING" {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestConnectAuthFailureIs401(t *testing.T) {
	env := newTestEnv(t, nil, fmt.Errorf("%w: token rejected", remote.ErrAuth))

	rec := env.do(t, http.MethodPost, "/api/connect", map[string]string{"token": "bad"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestConnectConnectionFailureIs503(t *testing.T) {
	env := newTestEnv(t, nil, fmt.Errorf("%w: no route to host", remote.ErrConnection))

	rec := env.do(t, http.MethodPost, "/api/connect", map[string]string{"token": "hf_x"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestGenerateAndChatFlow(t *testing.T) {
	env := newTestEnv(t, &stubConnector{}, nil)
	env.do(t, http.MethodPost, "/api/connect", map[string]string{"token": "hf_x"})

	rec := env.do(t, http.MethodPost, "/api/generate", domain.DefaultSettings())
	if rec.Code != http.StatusOK {
		t.Fatalf("generate status = %d, body %s", rec.Code, rec.Body)
	}
	gen := decode[session.GenerateResult](t, rec)
	if gen.Degraded {
		t.Error("healthy remote must not flag degraded")
	}
	if gen.Session.Image == nil {
		t.Fatal("expected an image on the session")
	}

	rec = env.do(t, http.MethodPost, "/api/chat", map[string]any{
		"conversation": gen.Session.Conversation,
		"message":      "I see a dog",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d, body %s", rec.Code, rec.Body)
	}
	chat := decode[session.ChatResult](t, rec)
	if len(chat.Conversation.Turns) != 2 {
		t.Errorf("expected 2 turns, got %d", len(chat.Conversation.Turns))
	}
	if chat.AttemptCount != 1 {
		t.Errorf("expected attempt count 1, got %d", chat.AttemptCount)
	}
}

func TestGenerateRejectsInvalidSettings(t *testing.T) {
	env := newTestEnv(t, &stubConnector{}, nil)
	env.do(t, http.MethodPost, "/api/connect", map[string]string{"token": "hf_x"})

	settings := domain.DefaultSettings()
	settings.SupportLevel = "Level 9"
	rec := env.do(t, http.MethodPost, "/api/generate", settings)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	env := newTestEnv(t, &stubConnector{}, nil)

	rec := env.do(t, http.MethodPost, "/api/chat", map[string]any{"message": ""})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestChatWithoutSessionIs409(t *testing.T) {
	env := newTestEnv(t, &stubConnector{}, nil)
	env.do(t, http.MethodPost, "/api/connect", map[string]string{"token": "hf_x"})

	rec := env.do(t, http.MethodPost, "/api/chat", map[string]any{"message": "hello"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestSaveLogWithoutSessionIs409(t *testing.T) {
	env := newTestEnv(t, &stubConnector{}, nil)
	env.do(t, http.MethodPost, "/api/connect", map[string]string{"token": "hf_x"})

	rec := env.do(t, http.MethodPost, "/api/session/save-log", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestSaveLogRefusedInFallbackIs503(t *testing.T) {
	env := newTestEnv(t, &stubConnector{}, nil)
	env.do(t, http.MethodPost, "/api/connect", map[string]string{"token": "hf_x"})
	env.do(t, http.MethodPost, "/api/generate", domain.DefaultSettings())
	env.do(t, http.MethodPost, "/api/fallback", map[string]bool{"enabled": true})

	rec := env.do(t, http.MethodPost, "/api/session/save-log", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestSaveLogReturnsPath(t *testing.T) {
	env := newTestEnv(t, &stubConnector{}, nil)
	env.do(t, http.MethodPost, "/api/connect", map[string]string{"token": "hf_x"})
	env.do(t, http.MethodPost, "/api/generate", domain.DefaultSettings())

	rec := env.do(t, http.MethodPost, "/api/session/save-log", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	resp := decode[map[string]string](t, rec)
	if !strings.HasSuffix(resp["path"], "session_log.ndjson") {
		t.Errorf("unexpected path %q", resp["path"])
	}
}

func TestFragmentEndpoints(t *testing.T) {
	env := newTestEnv(t, &stubConnector{}, nil)
	env.do(t, http.MethodPost, "/api/connect", map[string]string{"token": "hf_x"})
	env.do(t, http.MethodPost, "/api/generate", domain.DefaultSettings())

	rec := env.do(t, http.MethodGet, "/api/fragments/checklist", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("checklist status = %d", rec.Code)
	}
	if resp := decode[map[string]string](t, rec); !strings.Contains(resp["html"], "checklist-item") {
		t.Errorf("unexpected checklist fragment %q", resp["html"])
	}

	rec = env.do(t, http.MethodGet, "/api/fragments/difficulty", nil)
	if resp := decode[map[string]string](t, rec); resp["label"] == "" {
		t.Error("expected a difficulty label")
	}
}

func TestSessionCRUDRoutes(t *testing.T) {
	env := newTestEnv(t, &stubConnector{}, nil)
	sess := &domain.Session{
		ID:        "s1",
		Settings:  domain.DefaultSettings(),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := env.repo.SaveSession(context.Background(), sess); err != nil {
		t.Fatalf("seed repo: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/api/sessions/s1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	got := decode[domain.Session](t, rec)
	if got.ID != "s1" {
		t.Errorf("unexpected session %+v", got)
	}

	rec = env.do(t, http.MethodGet, "/api/sessions/absent", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("absent get status = %d, want 404", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/api/sessions/s1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if _, ok := env.repo.sessions["s1"]; ok {
		t.Error("session not deleted")
	}
}
