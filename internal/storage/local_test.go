package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLocal_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "uploads")

	_, err := NewLocal(dir)
	require.NoError(t, err)

	st, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, st.IsDir())

	_, err = NewLocal("")
	assert.Error(t, err)
}

func TestLocal_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	payload := []byte{0x00, 0xff, 'h', 'i', '\n'}
	info, err := s.Put(ctx, "123-456.png", strings.NewReader(string(payload)), PutObjectOptions{Size: int64(len(payload))})
	require.NoError(t, err)
	assert.Equal(t, "123-456.png", info.Key)
	assert.Equal(t, int64(len(payload)), info.Size)
	assert.Equal(t, "image/png", info.ContentType)

	rc, got, err := s.Get(ctx, "123-456.png")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, payload, body)
	assert.Equal(t, int64(len(payload)), got.Size)

	require.NoError(t, s.Delete(ctx, "123-456.png"))
	_, _, err = s.Get(ctx, "123-456.png")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	// Deleting again is a no-op.
	assert.NoError(t, s.Delete(ctx, "123-456.png"))
}

func TestLocal_PutDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = s.Put(ctx, "a.txt", strings.NewReader("one"), PutObjectOptions{})
	require.NoError(t, err)
	_, err = s.Put(ctx, "a.txt", strings.NewReader("two"), PutObjectOptions{})
	assert.Error(t, err)
}

func TestLocal_RejectsPathKeys(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "..", "../etc/passwd", "a/b.txt", `a\b.txt`} {
		_, err := s.Put(ctx, key, strings.NewReader("x"), PutObjectOptions{})
		assert.ErrorIs(t, err, ErrInvalidKey, key)

		_, _, err = s.Get(ctx, key)
		assert.ErrorIs(t, err, ErrObjectNotFound, key)
	}
}

func TestValidKey(t *testing.T) {
	assert.True(t, ValidKey("1700000000000-42.pdf"))
	assert.True(t, ValidKey("noext"))
	assert.False(t, ValidKey("."))
	assert.False(t, ValidKey("dir/file"))
}
