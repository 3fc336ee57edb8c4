package artifacts

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	path, err := s.Put(ctx, "reports/1/2024-Q1.xml", []byte("<CBAMReport/>"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("reports", "1", "2024-Q1.xml"), mustRel(t, s.root, path))

	data, err := s.Get(ctx, "reports/1/2024-Q1.xml")
	require.NoError(t, err)
	assert.Equal(t, "<CBAMReport/>", string(data))

	require.NoError(t, s.Delete(ctx, "reports/1/2024-Q1.xml"))
	_, err = s.Get(ctx, "reports/1/2024-Q1.xml")
	assert.Error(t, err)
}

func TestLocalStoreDeleteIsIdempotent(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, s.Delete(context.Background(), "never/existed.pdf"))
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"../outside.txt", "..", "/etc/passwd", "a/../../b"} {
		_, err := s.Put(ctx, key, []byte("x"))
		assert.Error(t, err, key)
	}
}

func mustRel(t *testing.T, base, target string) string {
	t.Helper()
	rel, err := filepath.Rel(base, target)
	require.NoError(t, err)
	return rel
}
