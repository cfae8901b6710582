package media

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/collabspace/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	pngHeader  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
	jpegHeader = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")
	webpHeader = []byte("RIFF\x24\x00\x00\x00WEBPVP8 \x18\x00\x00\x00")
	gifHeader  = []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00")
)

type pictureRecorder struct {
	urls map[uuid.UUID]string
}

func (p *pictureRecorder) SetPicture(_ context.Context, userID uuid.UUID, url string) error {
	if p.urls == nil {
		p.urls = make(map[uuid.UUID]string)
	}
	p.urls[userID] = url
	return nil
}

func newService(t *testing.T, maxBytes int64) (*Service, *pictureRecorder, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "http://localhost:8081/media/")
	require.NoError(t, err)
	pics := &pictureRecorder{}
	return NewService(zap.NewNop(), pics, store, maxBytes), pics, dir
}

func TestUploadAvatar_AcceptedTypes(t *testing.T) {
	for name, data := range map[string][]byte{".png": pngHeader, ".jpg": jpegHeader, ".webp": webpHeader} {
		t.Run(name, func(t *testing.T) {
			svc, pics, dir := newService(t, 1024)
			user := uuid.New()

			url, err := svc.UploadAvatar(context.Background(), user, int64(len(data)), bytes.NewReader(data))
			require.NoError(t, err)

			assert.True(t, strings.HasPrefix(url, "http://localhost:8081/media/"))
			assert.True(t, strings.HasSuffix(url, name))
			assert.Equal(t, url, pics.urls[user])

			stored, err := os.ReadFile(filepath.Join(dir, filepath.Base(url)))
			require.NoError(t, err)
			assert.Equal(t, data, stored)
		})
	}
}

func TestUploadAvatar_RejectsOtherTypes(t *testing.T) {
	svc, pics, _ := newService(t, 1024)

	for _, data := range [][]byte{gifHeader, []byte("just some text"), []byte("%PDF-1.4\n")} {
		_, err := svc.UploadAvatar(context.Background(), uuid.New(), -1, bytes.NewReader(data))
		assert.ErrorIs(t, err, models.ErrValidation)
	}
	assert.Empty(t, pics.urls)
}

func TestUploadAvatar_SizeLimit(t *testing.T) {
	svc, _, _ := newService(t, 64)
	big := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 64)...)

	// Declared too large: rejected before reading.
	_, err := svc.UploadAvatar(context.Background(), uuid.New(), 65, failingReader{})
	assert.ErrorIs(t, err, models.ErrValidation)

	// Declared small but actually large.
	_, err = svc.UploadAvatar(context.Background(), uuid.New(), 10, bytes.NewReader(big))
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = svc.UploadAvatar(context.Background(), uuid.New(), 0, bytes.NewReader(nil))
	assert.ErrorIs(t, err, models.ErrValidation)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestLocalStore_RejectsPathKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "http://x")
	require.NoError(t, err)

	for _, key := range []string{"../escape.png", "a/b.png", ".hidden"} {
		_, err := store.Put(context.Background(), key, bytes.NewReader(pngHeader))
		assert.Error(t, err, key)
	}
}
