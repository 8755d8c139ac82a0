package storage

import (
	"chat-room/contract"
	"chat-room/domain/mimetypes"
	"chat-room/errors"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// DiskSaver is the download surface of the terminal client: blobs land in a directory.
type DiskSaver struct {
	log *slog.Logger
	dir string
}

var _ contract.FileSaver = (*DiskSaver)(nil)

func NewDiskSaver(log *slog.Logger, dir string) *DiskSaver {
	return &DiskSaver{log: log, dir: dir}
}

// Save writes data under filename, adding the extension of mimeType when missing.
// An existing file with the same name is overwritten, like a repeated browser download.
func (d *DiskSaver) Save(ctx context.Context, data []byte, mimeType, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	_, isPlain := mimetypes.Matches(mimeType, mimetypes.TextPlain)
	_, isCSV := mimetypes.Matches(mimeType, mimetypes.TextCSV)
	if !isPlain && !isCSV {
		return "", fmt.Errorf("%w: %s", errors.ErrUnsupportedFormat, mimeType)
	}
	ext, err := mimetypes.Extension(mimeType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrUnsupportedFormat, err)
	}
	if !mimetypes.IsText(data) {
		return "", fmt.Errorf("%w: content is not text", errors.ErrUnsupportedFormat)
	}

	name := filepath.Base(filename)
	switch current := filepath.Ext(name); {
	case current == "":
		name += ext
	case !strings.EqualFold(current, ext):
		return "", fmt.Errorf("%w: %s does not match %s", errors.ErrUnsupportedFormat, name, mimeType)
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export dir: %w", err)
	}
	path := filepath.Join(d.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing export: %w", err)
	}
	d.log.Info("Conversation saved", "path", path, "bytes", len(data), "mime", mimeType)
	return path, nil
}
