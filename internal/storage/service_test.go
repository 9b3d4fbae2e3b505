package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sceneboard/internal/config"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"uploads/a.png", "uploads/a.png"},
		{"/uploads/a.png", "uploads/a.png"},
		{"../../etc/passwd", "etc/passwd"},
		{"uploads//x/../b.mp4", "uploads/b.mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizePath(tt.input))
		})
	}
}

func TestLocalService_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	data := []byte("frame data")
	require.NoError(t, s.Put(ctx, "uploads/1/a.png", bytes.NewReader(data), int64(len(data)), "image/png"))

	rc, err := s.Get(ctx, "uploads/1/a.png")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NoError(t, s.Delete(ctx, "uploads/1/a.png"))
	_, err = s.Get(ctx, "uploads/1/a.png")
	assert.ErrorIs(t, err, ErrNotFound)

	// deleting twice is fine
	assert.NoError(t, s.Delete(ctx, "uploads/1/a.png"))
}

func TestMemoryService_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.Put(ctx, "/a/b.png", bytes.NewReader([]byte("x")), 1, "image/png"))
	assert.Equal(t, 1, s.Len())

	rc, err := s.Get(ctx, "a/b.png")
	require.NoError(t, err)
	got, _ := io.ReadAll(rc)
	assert.Equal(t, []byte("x"), got)

	require.NoError(t, s.Delete(ctx, "a/b.png"))
	_, err = s.Get(ctx, "a/b.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New(context.Background(), config.StorageConfig{Type: "ftp"})
	assert.Error(t, err)
}

func TestMinIOService_RoundTrip(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_ENDPOINT not set")
	}
	ctx := context.Background()
	s, err := NewMinIO(ctx, config.MinIOConfig{
		Endpoint:   endpoint,
		AccessKey:  os.Getenv("MINIO_ACCESS_KEY"),
		SecretKey:  os.Getenv("MINIO_SECRET_KEY"),
		BucketName: "sceneboard-test",
	})
	require.NoError(t, err)

	data := []byte("clip")
	require.NoError(t, s.Put(ctx, "t/clip.mp4", bytes.NewReader(data), int64(len(data)), "video/mp4"))
	rc, err := s.Get(ctx, "t/clip.mp4")
	require.NoError(t, err)
	got, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, data, got)
	require.NoError(t, s.Delete(ctx, "t/clip.mp4"))
}
