// Package artifacts writes session exports (logs and images) to the local
// data directory, one subdirectory per session identifier.
package artifacts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/compumacy/visolearn-local/internal/domain"
)

// Writer persists session artifacts under a base directory.
type Writer struct {
	dir  string
	http *http.Client
}

// NewWriter creates a Writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{
		dir:  dir,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// sessionDir ensures and returns the directory for one session.
func (w *Writer) sessionDir(sessionID string) (string, error) {
	dir := filepath.Join(w.dir, "sessions", sessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create session directory: %w", err)
	}
	return dir, nil
}

// logRecord is one line of the session log file.
type logRecord struct {
	Time    string `json:"ts"`
	Kind    string `json:"kind"`
	Role    string `json:"role,omitempty"`
	Message string `json:"message,omitempty"`
	Remote  string `json:"remote_log,omitempty"`
}

// WriteLog writes the session log as newline-delimited JSON: a header record
// carrying the settings and the remote's exported log text, then one record
// per conversation turn. Returns the written path.
func (w *Writer) WriteLog(sess *domain.Session, remoteLog string) (string, error) {
	dir, err := w.sessionDir(sess.ID)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "session_log.ndjson")

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create session log: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	header := struct {
		Time     string                 `json:"ts"`
		Kind     string                 `json:"kind"`
		Settings domain.SessionSettings `json:"settings"`
		Remote   string                 `json:"remote_log,omitempty"`
	}{
		Time:     time.Now().UTC().Format(time.RFC3339),
		Kind:     "header",
		Settings: sess.Settings,
		Remote:   remoteLog,
	}
	if err := enc.Encode(header); err != nil {
		return "", fmt.Errorf("write session log header: %w", err)
	}
	for _, turn := range sess.Conversation.Turns {
		rec := logRecord{
			Time:    time.Now().UTC().Format(time.RFC3339),
			Kind:    "turn",
			Role:    turn.Role,
			Message: turn.Message,
		}
		if err := enc.Encode(rec); err != nil {
			return "", fmt.Errorf("write session log turn: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("sync session log: %w", err)
	}
	return path, nil
}

// WriteImages materializes exported images as numbered files in the session
// directory. Inline data URLs are decoded; anything else is fetched over
// HTTP. Returns the written paths in input order.
func (w *Writer) WriteImages(ctx context.Context, sessionID string, images []domain.ImageData) ([]string, error) {
	dir, err := w.sessionDir(sessionID)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(images))
	for i, img := range images {
		data, ext, err := w.imageBytes(ctx, img)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		path := filepath.Join(dir, fmt.Sprintf("image_%03d%s", i, ext))
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("write image %d: %w", i, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (w *Writer) imageBytes(ctx context.Context, img domain.ImageData) ([]byte, string, error) {
	if strings.HasPrefix(img.URL, "data:") {
		data, err := decodeDataURL(img.URL)
		return data, extensionFor(img.MimeType), err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, img.URL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build image request: %w", err)
	}
	resp, err := w.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	mime := img.MimeType
	if mime == "" {
		mime = resp.Header.Get("Content-Type")
	}
	return data, extensionFor(mime), nil
}

// decodeDataURL extracts the payload of a base64 data URL.
func decodeDataURL(url string) ([]byte, error) {
	_, encoded, ok := strings.Cut(url, ",")
	if !ok {
		return nil, fmt.Errorf("malformed data URL")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode data URL: %w", err)
	}
	return data, nil
}

func extensionFor(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
