package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("\x89PNG")
	uri, err := store.PutObject(context.Background(), "captcha/req-1/shot.png", "image/png", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "memory://captcha/req-1/shot.png", uri)

	payload[0] = 'X'
	data, contentType, ok := store.Object("captcha/req-1/shot.png")
	require.True(t, ok)
	require.Equal(t, "\x89PNG", string(data))
	require.Equal(t, "image/png", contentType)
	require.Equal(t, []string{"captcha/req-1/shot.png"}, store.Paths())

	_, _, ok = store.Object("missing")
	require.False(t, ok)
}
