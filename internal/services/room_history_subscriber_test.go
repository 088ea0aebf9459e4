package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"codesync/internal/models"
	"codesync/internal/repositories"
)

type memoryHistory struct {
	mu      sync.Mutex
	rows    []models.RoomHistory
	runs    int64
	failRun bool
}

func (m *memoryHistory) Create(_ context.Context, h *models.RoomHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, *h)
	return nil
}

func (m *memoryHistory) CountExecutions(context.Context, string) (int64, error) {
	if m.failRun {
		return 0, errors.New("db down")
	}
	return m.runs, nil
}

func (m *memoryHistory) snapshot() []models.RoomHistory {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.RoomHistory(nil), m.rows...)
}

func TestRoomHistorySubscriberRecordsEndedRooms(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := &memoryHistory{runs: 3}
	sub := NewRoomHistorySubscriber(rdb, store, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	ready := make(chan struct{})
	go func() { done <- sub.Run(ctx, ready) }()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never became ready")
	}

	ended := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	publisher := repositories.NewRoomRepository(rdb)
	require.NoError(t, publisher.PublishRoomEnded(context.Background(), models.RoomEndedEvent{
		RoomID: "room1", Reason: "grace_expired", EndedAt: ended,
	}))

	assert.Eventually(t, func() bool { return len(store.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	row := store.snapshot()[0]
	assert.Equal(t, "room1", row.RoomID)
	assert.Equal(t, "grace_expired", row.Reason)
	assert.Equal(t, int64(3), row.Executions)
	assert.True(t, ended.Equal(row.EndedAt))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}

func TestRoomHistorySubscriberHandle(t *testing.T) {
	store := &memoryHistory{failRun: true}
	sub := NewRoomHistorySubscriber(nil, store, zap.NewNop())

	sub.handle("not json")
	sub.handle(`{"reason":"explicit"}`)
	assert.Empty(t, store.snapshot())

	sub.handle(`{"roomId":"room9","reason":"explicit"}`)
	rows := store.snapshot()
	require.Len(t, rows, 1)
	assert.Zero(t, rows[0].Executions)
	assert.False(t, rows[0].EndedAt.IsZero())
}
