// Package filestore reads task source documents from the local filesystem
// and manages the upload scopes created for documents sent through the API.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/private-doc-vault/docvault-ocr-service/internal/domain"
)

// uploadsDir holds one directory per uploaded document.
const uploadsDir = "uploads"

// ErrTooLarge is returned by Save when the upload exceeds its limit.
var ErrTooLarge = errors.New("upload exceeds size limit")

// Local stores files under a base directory. Task file paths are resolved
// relative to it and may not escape it.
type Local struct {
	baseDir string
	logger  *slog.Logger
}

// NewLocal creates the base directory if needed.
func NewLocal(baseDir string, logger *slog.Logger) (*Local, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage dir %s: %w", baseDir, err)
	}
	if err := os.MkdirAll(filepath.Join(abs, uploadsDir), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage dir %s: %w", abs, err)
	}
	return &Local{baseDir: abs, logger: logger.With("component", "filestore")}, nil
}

// BaseDir returns the absolute base directory.
func (l *Local) BaseDir() string { return l.baseDir }

// Save writes r into a new upload scope and returns the stored path relative
// to the base directory. A positive maxBytes limits the upload size.
func (l *Local) Save(ctx context.Context, filename string, r io.Reader, maxBytes int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	scope := uuid.NewString()
	dir := filepath.Join(l.baseDir, uploadsDir, scope)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}

	name := sanitizeFilename(filename)
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}

	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && maxBytes > 0 && n > maxBytes {
		err = fmt.Errorf("%w: %d bytes", ErrTooLarge, maxBytes)
	}
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("failed to save upload: %w", err)
	}

	rel := filepath.Join(uploadsDir, scope, name)
	l.logger.Debug("upload saved", "path", rel, "bytes", n)
	return rel, nil
}

// Open reads the document at path. A missing file fails permanently.
func (l *Local) Open(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := l.resolve(path)
	if err != nil {
		return nil, domain.Permanent(err)
	}

	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.Permanent(fmt.Errorf("%w: source file %s", domain.ErrNotFound, path))
	}
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("failed to read %s: %w", path, err))
	}
	return data, nil
}

// Cleanup removes the upload scope that holds path. Paths outside an upload
// scope belong to the caller and are left alone.
func (l *Local) Cleanup(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	full, err := l.resolve(path)
	if err != nil {
		return err
	}

	scope, ok := l.uploadScope(full)
	if !ok {
		return nil
	}
	if err := os.RemoveAll(scope); err != nil {
		return fmt.Errorf("failed to remove %s: %w", scope, err)
	}
	l.logger.Debug("upload scope removed", "path", path)
	return nil
}

// Exists reports whether path names a readable regular file.
func (l *Local) Exists(path string) bool {
	full, err := l.resolve(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && info.Mode().IsRegular()
}

func (l *Local) resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: empty file path", domain.ErrInvalidSpec)
	}

	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(l.baseDir, full)
	}
	full = filepath.Clean(full)

	rel, err := filepath.Rel(l.baseDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside the storage dir", domain.ErrInvalidSpec, path)
	}
	return full, nil
}

// uploadScope returns the uploads/<scope> directory containing full.
func (l *Local) uploadScope(full string) (string, bool) {
	rel, err := filepath.Rel(filepath.Join(l.baseDir, uploadsDir), full)
	if err != nil {
		return "", false
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) < 2 || parts[0] == ".." || parts[0] == "." {
		return "", false
	}
	return filepath.Join(l.baseDir, uploadsDir, parts[0]), true
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "")
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "document"
	}
	return name
}
