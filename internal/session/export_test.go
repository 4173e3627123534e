package session

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/compumacy/visolearn-local/internal/domain"
)

func TestSaveLogWritesFileAndPersists(t *testing.T) {
	conn := &fakeConnector{
		saveLog: func() (string, error) { return "remote log text", nil },
	}
	repo := newFakeRepo()
	svc := newTestService(t, conn, nil)
	svc.repo = repo
	connect(t, svc)
	if _, err := svc.Generate(context.Background(), domain.DefaultSettings()); err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	path, err := svc.SaveLog(context.Background())
	if err != nil {
		t.Fatalf("save log failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "remote log text") {
		t.Error("log file missing the remote log text")
	}

	current := svc.Current()
	if got, _ := repo.GetSession(context.Background(), current.ID); got == nil {
		t.Error("session was not persisted after save")
	}
}

func TestSaveLogRefusedInFallback(t *testing.T) {
	svc := newTestService(t, &fakeConnector{}, nil)
	connect(t, svc)
	if _, err := svc.Generate(context.Background(), domain.DefaultSettings()); err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	svc.SetFallback(true)

	if _, err := svc.SaveLog(context.Background()); !errors.Is(err, ErrFallbackUnavailable) {
		t.Fatalf("expected ErrFallbackUnavailable, got %v", err)
	}
	if _, err := svc.SaveImages(context.Background()); !errors.Is(err, ErrFallbackUnavailable) {
		t.Fatalf("expected ErrFallbackUnavailable, got %v", err)
	}
}

func TestSaveLogRequiresSessionAndHandle(t *testing.T) {
	svc := newTestService(t, &fakeConnector{}, nil)

	if _, err := svc.SaveLog(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}

	// A fallback-generated session exists but no handle was ever dialed.
	svc.SetFallback(true)
	if _, err := svc.Generate(context.Background(), domain.DefaultSettings()); err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	svc.SetFallback(false)
	if _, err := svc.SaveLog(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestSaveImagesPropagatesRemoteError(t *testing.T) {
	conn := &fakeConnector{
		saveImages: func() ([]domain.ImageData, error) {
			return nil, errors.New("remote exploded")
		},
	}
	svc := newTestService(t, conn, nil)
	connect(t, svc)
	if _, err := svc.Generate(context.Background(), domain.DefaultSettings()); err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	if _, err := svc.SaveImages(context.Background()); err == nil {
		t.Fatal("export must propagate remote failures, not absorb them")
	}
}
