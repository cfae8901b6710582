package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/lalith-99/collabspace/internal/models"
	"github.com/lalith-99/collabspace/internal/observ"
	"go.uber.org/zap"
)

type profileRepo interface {
	SetPicture(ctx context.Context, userID uuid.UUID, url string) error
}

// ObjectStore persists an uploaded object and returns its public URL.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader) (string, error)
}

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

type Service struct {
	log      *zap.Logger
	profiles profileRepo
	store    ObjectStore
	maxBytes int64
}

func NewService(logger *zap.Logger, profiles profileRepo, store ObjectStore, maxBytes int64) *Service {
	return &Service{
		log:      observ.Component(logger, "media"),
		profiles: profiles,
		store:    store,
		maxBytes: maxBytes,
	}
}

// UploadAvatar stores an image and points the user's profile picture at it.
//
// declaredSize is what the client claimed (-1 if unknown). The body is read
// through a limit either way, so a lying client still can't exceed maxBytes.
// The type is sniffed from the bytes; the filename extension is ignored.
func (s *Service) UploadAvatar(ctx context.Context, userID uuid.UUID, declaredSize int64, r io.Reader) (string, error) {
	if declaredSize > s.maxBytes {
		return "", tooLarge(s.maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return "", tooLarge(s.maxBytes)
	}
	if len(data) == 0 {
		return "", models.NewValidationError("file", "empty upload")
	}

	mt := mimetype.Detect(data)
	ext, ok := allowedTypes[mt.String()]
	if !ok {
		return "", models.NewValidationError("file", "must be a JPEG, PNG or WebP image, got "+mt.String())
	}

	key := uuid.NewString() + ext
	url, err := s.store.Put(ctx, key, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("store avatar: %w", err)
	}

	if err := s.profiles.SetPicture(ctx, userID, url); err != nil {
		return "", fmt.Errorf("set profile picture: %w", err)
	}

	s.log.Info("avatar uploaded",
		zap.String("user_id", userID.String()),
		zap.String("mime", mt.String()),
		zap.Int("bytes", len(data)),
	)
	return url, nil
}

func tooLarge(limit int64) error {
	return models.NewValidationError("file", fmt.Sprintf("must be at most %d bytes", limit))
}

// LocalStore writes objects under Dir and serves them from BaseURL.
type LocalStore struct {
	Dir     string
	BaseURL string
}

func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	if key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", errors.New("invalid object key")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := filepath.Join(s.Dir, key)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", key, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close %s: %w", key, err)
	}
	return s.BaseURL + "/" + key, nil
}
