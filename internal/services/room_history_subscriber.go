package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"codesync/internal/models"
	"codesync/internal/repositories"
)

const handleTimeout = 5 * time.Second

// HistoryStore persists one row per ended room.
type HistoryStore interface {
	Create(ctx context.Context, h *models.RoomHistory) error
	CountExecutions(ctx context.Context, roomID string) (int64, error)
}

// RoomHistorySubscriber turns room_ended events into room history rows.
type RoomHistorySubscriber struct {
	rdb        *redis.Client
	store      HistoryStore
	logger     *zap.Logger
	instanceID string
}

func NewRoomHistorySubscriber(rdb *redis.Client, store HistoryStore, logger *zap.Logger) *RoomHistorySubscriber {
	return &RoomHistorySubscriber{
		rdb:        rdb,
		store:      store,
		logger:     logger,
		instanceID: uuid.New().String()[:8],
	}
}

// Run listens on the room_ended channel until ctx is canceled. ready, when
// non-nil, is closed once the subscription is confirmed.
func (s *RoomHistorySubscriber) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := s.rdb.Subscribe(ctx, repositories.RoomEndedChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}
	s.logger.Info("subscribed to room_ended", zap.String("instance", s.instanceID))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.handle(msg.Payload)
		}
	}
}

func (s *RoomHistorySubscriber) handle(payload string) {
	var evt models.RoomEndedEvent
	if err := json.Unmarshal([]byte(payload), &evt); err != nil || evt.RoomID == "" {
		s.logger.Warn("ignoring malformed room_ended event", zap.String("payload", payload), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	runs, err := s.store.CountExecutions(ctx, evt.RoomID)
	if err != nil {
		s.logger.Warn("failed to count room executions", zap.String("roomId", evt.RoomID), zap.Error(err))
	}

	endedAt := evt.EndedAt
	if endedAt.IsZero() {
		endedAt = time.Now().UTC()
	}
	h := &models.RoomHistory{
		RoomID:     evt.RoomID,
		Reason:     evt.Reason,
		Executions: runs,
		EndedAt:    endedAt,
	}
	if err := s.store.Create(ctx, h); err != nil {
		s.logger.Error("failed to save room history", zap.String("roomId", evt.RoomID), zap.Error(err))
		return
	}
	s.logger.Info("room history saved",
		zap.String("instance", s.instanceID),
		zap.String("roomId", evt.RoomID),
		zap.String("reason", evt.Reason),
		zap.Int64("executions", runs))
}
