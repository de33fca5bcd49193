package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	key, err := s.Put(ctx, "/tests/l1/part1.mp3", strings.NewReader("ID3"), 3, "audio/mpeg")
	require.NoError(t, err)
	assert.Equal(t, "tests/l1/part1.mp3", key)

	rc, err := s.Get(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "ID3", string(b))

	u, err := s.SignedURL(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "/assets/tests/l1/part1.mp3", u)

	// overwrite replaces the whole recording
	_, err = s.Put(ctx, key, strings.NewReader("ID3v2"), 5, "audio/mpeg")
	require.NoError(t, err)
	rc2, err := s.Get(ctx, key)
	require.NoError(t, err)
	defer rc2.Close()
	b, err = io.ReadAll(rc2)
	require.NoError(t, err)
	assert.Equal(t, "ID3v2", string(b))
}

func TestCleanKeyRejectsEscapes(t *testing.T) {
	for _, k := range []string{"", "  ", "..", "../etc/passwd", "a/../../b"} {
		_, err := CleanKey(k)
		assert.ErrorIs(t, err, ErrBadKey, k)
	}
	k, err := CleanKey("a/./b//c")
	require.NoError(t, err)
	assert.Equal(t, "a/b/c", k)
}

func TestFSStoreMissingKey(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	_, err = s.Get(context.Background(), "tests/none.mp3")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.SignedURL(context.Background(), "tests/none.mp3")
	assert.ErrorIs(t, err, ErrNotFound)
}
