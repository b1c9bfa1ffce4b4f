package storage

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/eventsapi/internal/core/domain"
	"github.com/atvirokodosprendimai/eventsapi/internal/core/ports"
)

// PublicPrefix is the URL prefix under which stored files are served.
const PublicPrefix = "/uploads"

var errInvalidPath = errors.New("invalid attachment path")

var nameSpace = big.NewInt(1_000_000_000)

// LocalStore keeps attachments as flat files in one directory.
type LocalStore struct {
	dir string
	now func() time.Time
}

func NewLocalStore(dir string) *LocalStore {
	if dir == "" {
		dir = "./uploads"
	}
	return &LocalStore{dir: dir, now: time.Now}
}

var _ ports.AttachmentStore = (*LocalStore)(nil)

func (s *LocalStore) Dir() string {
	return s.dir
}

// Save writes the attachment under a generated name and returns
// /uploads/<name>. At most MaxAttachmentSize bytes are accepted.
func (s *LocalStore) Save(ctx context.Context, a domain.Attachment) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.ensureDir(); err != nil {
		return "", err
	}

	name, err := s.newName(a.Extension())
	if err != nil {
		return "", err
	}
	full := filepath.Join(s.dir, name)

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create attachment: %w", err)
	}

	n, copyErr := io.Copy(f, io.LimitReader(a.Body, domain.MaxAttachmentSize+1))
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		_ = os.Remove(full)
		return "", fmt.Errorf("write attachment: %w", copyErr)
	case closeErr != nil:
		_ = os.Remove(full)
		return "", fmt.Errorf("close attachment: %w", closeErr)
	case n > domain.MaxAttachmentSize:
		_ = os.Remove(full)
		return "", domain.NewValidationError("image must not exceed 5 MiB")
	}

	return path.Join(PublicPrefix, name), nil
}

// Remove deletes the file behind relPath. A missing file is not an error.
func (s *LocalStore) Remove(ctx context.Context, relPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, err := fileName(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove attachment: %w", err)
	}
	return nil
}

// ensureDir runs on every save so a directory removed after startup is
// recreated.
func (s *LocalStore) ensureDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	return nil
}

// newName returns <unix-millis>-<9 random digits><ext>.
func (s *LocalStore) newName(ext string) (string, error) {
	n, err := rand.Int(rand.Reader, nameSpace)
	if err != nil {
		return "", fmt.Errorf("generate attachment name: %w", err)
	}
	return fmt.Sprintf("%d-%09d%s", s.now().UnixMilli(), n.Int64(), ext), nil
}

// fileName accepts "/uploads/<name>" or a bare name and rejects anything that
// would leave the upload directory.
func fileName(relPath string) (string, error) {
	trimmed := strings.TrimPrefix(relPath, PublicPrefix+"/")
	if trimmed == "" || trimmed == "." || trimmed == ".." ||
		strings.ContainsAny(trimmed, `/\`) {
		return "", fmt.Errorf("%w: %q", errInvalidPath, relPath)
	}
	return trimmed, nil
}
