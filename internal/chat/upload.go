package chat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
)

// uploadExtensions are the file types the backend can extract text from.
var uploadExtensions = []string{"pdf", "txt", "png", "jpg", "jpeg"}

// Upload attaches the file read from r to the open chat. name is only used for its base name, which
// is shown in the transcript and sent to the backend. The acknowledgment is returned as the backend
// sent it.
//
// ErrNoActiveChat and ErrUnsupportedFile are returned before anything is shown or sent.
func (c *Controller) Upload(ctx context.Context, name string, r io.Reader) (map[string]any, error) {
	name = filepath.Base(name)

	chatID, ok := c.session.Active()
	if !ok {
		return nil, ErrNoActiveChat
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if !slices.Contains(uploadExtensions, ext) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, name)
	}

	c.transcript.AppendUser("📎 Uploaded: " + name)

	ack, err := c.uploader.Upload(ctx, chatID, name, r)
	if err != nil {
		c.logger.Error("Upload failed",
			slog.String("chatID", chatID),
			slog.String("file", name),
			slog.String(errLoggerKey, err.Error()))
		return nil, fmt.Errorf("failed to upload %s: %w", name, err)
	}

	c.logger.Info("Upload acknowledged",
		slog.String("chatID", chatID),
		slog.String("file", name),
		slog.Any("ack", ack))

	return ack, nil
}
