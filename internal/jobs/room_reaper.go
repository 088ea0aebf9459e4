package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const reapTimeout = time.Minute

// Reaper ends rooms that no live connection can reach any more.
type Reaper interface {
	ReapIdleRooms(ctx context.Context, ttl time.Duration) (int, error)
}

// RoomReaperJob sweeps rooms stranded by a crash, where no disconnect event
// ever ran for their participants.
type RoomReaperJob struct {
	reaper   Reaper
	schedule string
	idleTTL  time.Duration
	cron     *cron.Cron
	logger   *zap.Logger
}

func NewRoomReaperJob(reaper Reaper, schedule string, idleTTL time.Duration, logger *zap.Logger) *RoomReaperJob {
	return &RoomReaperJob{
		reaper:   reaper,
		schedule: schedule,
		idleTTL:  idleTTL,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start schedules the sweep. An empty schedule disables the job.
func (j *RoomReaperJob) Start() error {
	if j.schedule == "" {
		j.logger.Info("room reaper disabled")
		return nil
	}

	_, err := j.cron.AddFunc(j.schedule, func() {
		if _, err := j.RunOnce(context.Background()); err != nil {
			j.logger.Error("room reaper run failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule room reaper: %w", err)
	}

	j.cron.Start()
	j.logger.Info("room reaper started", zap.String("schedule", j.schedule), zap.Duration("idleTTL", j.idleTTL))
	return nil
}

// Stop waits for a running sweep to finish.
func (j *RoomReaperJob) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
	}
}

// RunOnce performs a single sweep.
func (j *RoomReaperJob) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, reapTimeout)
	defer cancel()

	n, err := j.reaper.ReapIdleRooms(ctx, j.idleTTL)
	if err != nil {
		return n, fmt.Errorf("failed to reap idle rooms: %w", err)
	}
	if n > 0 {
		j.logger.Info("reaped idle rooms", zap.Int("count", n))
	}
	return n, nil
}
