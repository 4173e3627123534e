package remote

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/compumacy/visolearn-local/internal/domain"
)

// ChatPayload is the decoded result of one chat round-trip.
type ChatPayload struct {
	Reply           string
	IdentifiedCount int
	Image           *domain.ImageData
}

// GenerateImage invokes the image generation endpoint. A successful call
// also resets the remote chat state, so the caller must start from an empty
// conversation afterwards.
func (c *Client) GenerateImage(ctx context.Context, settings domain.SessionSettings) (domain.ImageData, error) {
	result, err := c.call(ctx, opGenerateImage, c.cfg.GenerateTimeout,
		settings.Age,
		string(settings.SupportLevel),
		settings.TopicFocus,
		settings.TreatmentPlan,
		settings.AttemptLimit,
		settings.DetailsThreshold,
		string(settings.ImageStyle),
	)
	if err != nil {
		return domain.ImageData{}, err
	}
	if len(result) == 0 {
		return domain.ImageData{}, fmt.Errorf("%w: %s returned no data", ErrProtocol, opGenerateImage)
	}
	var img domain.ImageData
	if err := json.Unmarshal(result[0], &img); err != nil {
		return domain.ImageData{}, fmt.Errorf("%w: %s image payload: %v", ErrProtocol, opGenerateImage, err)
	}
	if img.URL == "" {
		return domain.ImageData{}, fmt.Errorf("%w: %s image payload missing url", ErrProtocol, opGenerateImage)
	}
	return img, nil
}

// ChatRespond submits one child message and decodes the teacher reply, the
// cumulative identified-detail count, and an optional replacement image.
func (c *Client) ChatRespond(ctx context.Context, userMessage string) (ChatPayload, error) {
	result, err := c.call(ctx, opChatRespond, c.cfg.RequestTimeout, userMessage)
	if err != nil {
		return ChatPayload{}, err
	}
	if len(result) == 0 {
		return ChatPayload{}, fmt.Errorf("%w: %s returned no data", ErrProtocol, opChatRespond)
	}

	var p ChatPayload
	if err := json.Unmarshal(result[0], &p.Reply); err != nil {
		return ChatPayload{}, fmt.Errorf("%w: %s reply payload: %v", ErrProtocol, opChatRespond, err)
	}
	if len(result) > 1 {
		if err := json.Unmarshal(result[1], &p.IdentifiedCount); err != nil {
			return ChatPayload{}, fmt.Errorf("%w: %s detail count payload: %v", ErrProtocol, opChatRespond, err)
		}
		if p.IdentifiedCount < 0 {
			return ChatPayload{}, fmt.Errorf("%w: %s reported negative detail count %d", ErrProtocol, opChatRespond, p.IdentifiedCount)
		}
	}
	if len(result) > 2 && string(result[2]) != "null" {
		var img domain.ImageData
		if err := json.Unmarshal(result[2], &img); err != nil {
			return ChatPayload{}, fmt.Errorf("%w: %s image payload: %v", ErrProtocol, opChatRespond, err)
		}
		if img.URL != "" {
			p.Image = &img
		}
	}
	return p, nil
}

// SaveSessionLog exports the remote session log and returns its text. The
// caller is responsible for writing it to disk.
func (c *Client) SaveSessionLog(ctx context.Context) (string, error) {
	return c.stringOp(ctx, opSaveSessionLog)
}

// SaveAllSessionImages exports every image generated in the current remote
// session.
func (c *Client) SaveAllSessionImages(ctx context.Context) ([]domain.ImageData, error) {
	result, err := c.call(ctx, opSaveSessionImages, c.cfg.GenerateTimeout)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: %s returned no data", ErrProtocol, opSaveSessionImages)
	}
	var images []domain.ImageData
	if err := json.Unmarshal(result[0], &images); err != nil {
		return nil, fmt.Errorf("%w: %s image list payload: %v", ErrProtocol, opSaveSessionImages, err)
	}
	return images, nil
}

// ChecklistHTML returns the rendered checklist fragment for the current
// remote session. Read-only and idempotent for identical remote state.
func (c *Client) ChecklistHTML(ctx context.Context) (string, error) {
	return c.stringOp(ctx, opChecklistHTML)
}

// ProgressHTML returns the rendered progress fragment.
func (c *Client) ProgressHTML(ctx context.Context) (string, error) {
	return c.stringOp(ctx, opProgressHTML)
}

// AttemptCounterHTML returns the rendered attempt counter fragment.
func (c *Client) AttemptCounterHTML(ctx context.Context) (string, error) {
	return c.stringOp(ctx, opAttemptCounter)
}

// DifficultyLabel returns the remote's current difficulty label.
func (c *Client) DifficultyLabel(ctx context.Context) (string, error) {
	return c.stringOp(ctx, opDifficultyLabel)
}

// SessionsData returns the remote's saved-session summary. The shape is
// remote-defined; it is handed to the UI verbatim.
func (c *Client) SessionsData(ctx context.Context) (json.RawMessage, error) {
	result, err := c.call(ctx, opSessions, c.cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: %s returned no data", ErrProtocol, opSessions)
	}
	return result[0], nil
}

func (c *Client) stringOp(ctx context.Context, op string) (string, error) {
	result, err := c.call(ctx, op, c.cfg.RequestTimeout)
	if err != nil {
		return "", err
	}
	if len(result) == 0 {
		return "", fmt.Errorf("%w: %s returned no data", ErrProtocol, op)
	}
	var s string
	if err := json.Unmarshal(result[0], &s); err != nil {
		return "", fmt.Errorf("%w: %s payload: %v", ErrProtocol, op, err)
	}
	return s, nil
}
