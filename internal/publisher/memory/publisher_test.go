package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "lead-reports", map[string]string{"id": "r-1"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "lead-reports", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	msgs[0].Topic = "modified"
	require.Equal(t, "lead-reports", pub.Messages()[0].Topic)
}

func TestFailingPublisher(t *testing.T) {
	t.Parallel()

	boom := errors.New("broker down")
	_, err := Failing(boom).Publish(context.Background(), "t", nil)
	require.ErrorIs(t, err, boom)
}
