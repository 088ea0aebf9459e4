package room_management

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"codesync/internal/exec"
	"codesync/internal/metrics"
	"codesync/internal/models"
	"codesync/internal/repositories"
	"codesync/internal/session"
	"codesync/internal/utils"
)

const (
	maxRoomIDAttempts = 10
	joinAttempts      = 3
	expireTimeout     = 5 * time.Second
)

// reasons reported on room_ended and in metrics
const (
	ReasonExplicit     = "explicit"
	ReasonGraceExpired = "grace_expired"
	ReasonEmpty        = "empty"
	ReasonIdle         = "idle"
)

var (
	ErrJoinFailed      = errors.New("join failed")
	ErrRoomIDExhausted = errors.New("could not allocate a unique room id")
	errNotMember       = errors.New("connection is not a participant")
)

// RoomStore is the membership store the manager reads and writes.
type RoomStore interface {
	UpsertRoom(ctx context.Context, roomID string) (*models.Room, error)
	CreateRoom(ctx context.Context, roomID string) (*models.Room, error)
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	RoomExists(ctx context.Context, roomID string) (bool, error)
	UpdateRoom(ctx context.Context, roomID string, fn func(*models.Room) error) (*models.Room, error)
	DeleteRoom(ctx context.Context, roomID string) (bool, error)
	RoomsForConnection(ctx context.Context, connID string) ([]string, error)
	ListRooms(ctx context.Context) ([]*models.Room, error)
	PublishRoomEnded(ctx context.Context, evt models.RoomEndedEvent) error
}

// Broadcaster delivers frames to the connections subscribed to a room.
type Broadcaster interface {
	Subscribe(roomID string, c *session.Client)
	Unsubscribe(roomID, connID string)
	Broadcast(roomID string, frame models.WSFrame)
	BroadcastExcept(roomID, exceptConnID string, frame models.WSFrame)
	CloseRoom(roomID string)
}

// Catalog resolves question ids.
type Catalog interface {
	GetByID(ctx context.Context, id string) (*models.Question, error)
}

type Executor interface {
	Validate(lang models.Language, code string) error
	Execute(ctx context.Context, req exec.Request) (*exec.Result, error)
	ProviderName() string
}

// Recorder stores execution audit rows. A nil Recorder disables auditing.
type Recorder interface {
	Record(ctx context.Context, rec *models.ExecutionRecord) error
}

// ConnectionRegistry answers whether a connection is still live.
type ConnectionRegistry interface {
	Has(connID string) bool
}

type Deps struct {
	Store       RoomStore
	Hub         Broadcaster
	Registry    ConnectionRegistry
	Catalog     Catalog
	Executor    Executor
	Recorder    Recorder
	GracePeriod time.Duration
	Logger      *zap.Logger
}

// RoomManager is the room coordinator. All cross-connection state lives in the
// store; the grace timers are the only in-process room state it owns.
type RoomManager struct {
	store    RoomStore
	hub      Broadcaster
	registry ConnectionRegistry
	catalog  Catalog
	executor Executor
	recorder Recorder
	grace    *GraceScheduler
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

func NewRoomManager(d Deps) *RoomManager {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &RoomManager{
		store:    d.Store,
		hub:      d.Hub,
		registry: d.Registry,
		catalog:  d.Catalog,
		executor: d.Executor,
		recorder: d.Recorder,
		logger:   logger,
		now:      time.Now,
		newID:    utils.NewRoomID,
	}
	m.grace = NewGraceScheduler(d.GracePeriod, m.ExpireGrace)
	return m
}

func (m *RoomManager) Grace() *GraceScheduler { return m.grace }

// Join admits client into roomID, creating the room on first use. Any store
// failure is reported as ErrJoinFailed and nothing is broadcast.
func (m *RoomManager) Join(ctx context.Context, client *session.Client, roomID, displayName string) (*models.JoinSnapshot, error) {
	connID := client.ID

	var (
		room   *models.Room
		role   models.Role
		purged int
		err    error
	)
	for attempt := 0; attempt < joinAttempts; attempt++ {
		if _, err = m.store.UpsertRoom(ctx, roomID); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrJoinFailed, err)
		}
		room, err = m.store.UpdateRoom(ctx, roomID, func(r *models.Room) error {
			purged = m.purgeGhosts(r, connID)
			role = admit(r, connID, displayName, m.now().UTC())
			return nil
		})
		// the room can vanish between upsert and update when its last
		// participant leaves concurrently
		if !errors.Is(err, repositories.ErrRoomNotFound) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrJoinFailed, err)
	}

	// a connection sits in one room at a time; the old room is only left
	// once the new one has admitted it
	if err := m.migrateFrom(ctx, connID, roomID); err != nil {
		m.logger.Warn("failed to leave previous room",
			zap.String("roomId", roomID),
			zap.String("connId", connID),
			zap.Error(err))
	}

	if room.HasInterviewer() && m.grace.Cancel(roomID) {
		m.logger.Info("grace period canceled", zap.String("roomId", roomID))
	}

	metrics.RoomJoined()
	if purged > 0 {
		metrics.GhostsPurged(purged)
		m.logger.Info("purged ghost participants", zap.String("roomId", roomID), zap.Int("count", purged))
	}

	m.hub.Subscribe(roomID, client)
	m.broadcastParticipants(room)

	m.logger.Info("participant joined",
		zap.String("roomId", roomID),
		zap.String("connId", connID),
		zap.String("role", string(role)))

	return &models.JoinSnapshot{
		Role:               role,
		Participants:       room.Participants,
		Language:           room.Language,
		Document:           room.Document,
		Input:              room.Input,
		SelectedQuestionID: room.SelectedQuestionID,
	}, nil
}

// purgeGhosts drops every participant other than connID whose connection is
// no longer registered.
func (m *RoomManager) purgeGhosts(r *models.Room, connID string) int {
	kept := r.Participants[:0]
	purged := 0
	for _, p := range r.Participants {
		if p.ConnectionID == connID || m.registry.Has(p.ConnectionID) {
			kept = append(kept, p)
			continue
		}
		purged++
	}
	r.Participants = kept
	return purged
}

// admit inserts or updates connID and returns its role after arbitration.
func admit(r *models.Room, connID, displayName string, now time.Time) models.Role {
	role := models.RoleInterviewer
	for _, p := range r.Participants {
		if p.ConnectionID != connID && p.Role == models.RoleInterviewer {
			role = models.RoleCandidate
			break
		}
	}

	if existing := r.Participant(connID); existing != nil {
		existing.DisplayName = displayName
		existing.Role = role
	} else {
		r.Participants = append(r.Participants, models.Participant{
			ConnectionID: connID,
			DisplayName:  displayName,
			Role:         role,
			JoinedAt:     now,
		})
	}

	arbitrate(r)
	return r.Participant(connID).Role
}

// arbitrate keeps the earliest Interviewer in list order and downgrades the rest.
func arbitrate(r *models.Room) {
	seen := false
	for i := range r.Participants {
		if r.Participants[i].Role != models.RoleInterviewer {
			continue
		}
		if seen {
			r.Participants[i].Role = models.RoleCandidate
		}
		seen = true
	}
}

// migrateFrom removes connID from every room other than keep.
func (m *RoomManager) migrateFrom(ctx context.Context, connID, keep string) error {
	rooms, err := m.store.RoomsForConnection(ctx, connID)
	if err != nil {
		return err
	}
	for _, other := range rooms {
		if other == keep {
			continue
		}
		m.hub.Unsubscribe(other, connID)
		if err := m.leave(ctx, other, connID, false); err != nil {
			return err
		}
	}
	return nil
}

// Leave removes connID from roomID. When the departing participant was the
// Interviewer the room ends now (explicitEnd) or after the grace period.
func (m *RoomManager) Leave(ctx context.Context, roomID, connID string, explicitEnd bool) error {
	m.hub.Unsubscribe(roomID, connID)
	return m.leave(ctx, roomID, connID, explicitEnd)
}

// LeaveAll applies Leave to every room connID is recorded in. Used when a
// connection drops without saying goodbye.
func (m *RoomManager) LeaveAll(ctx context.Context, connID string) error {
	rooms, err := m.store.RoomsForConnection(ctx, connID)
	if err != nil {
		return err
	}
	var errs []error
	for _, roomID := range rooms {
		m.hub.Unsubscribe(roomID, connID)
		if err := m.leave(ctx, roomID, connID, false); err != nil {
			errs = append(errs, fmt.Errorf("room %s: %w", roomID, err))
		}
	}
	return errors.Join(errs...)
}

func (m *RoomManager) leave(ctx context.Context, roomID, connID string, explicitEnd bool) error {
	var removed *models.Participant
	room, err := m.store.UpdateRoom(ctx, roomID, func(r *models.Room) error {
		removed = r.RemoveParticipant(connID)
		if removed == nil {
			return errNotMember
		}
		return nil
	})
	if errors.Is(err, errNotMember) || errors.Is(err, repositories.ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	m.logger.Info("participant left",
		zap.String("roomId", roomID),
		zap.String("connId", connID),
		zap.String("role", string(removed.Role)),
		zap.Bool("endRoom", explicitEnd))

	m.broadcastParticipants(room)

	wasInterviewer := removed.Role == models.RoleInterviewer
	switch {
	case wasInterviewer && explicitEnd:
		return m.EndRoom(ctx, roomID, ReasonExplicit)
	case len(room.Participants) == 0:
		// the store already deleted the emptied room
		m.grace.Cancel(roomID)
		m.hub.CloseRoom(roomID)
		metrics.RoomEnded(ReasonEmpty)
		m.logger.Info("room deleted after last participant left", zap.String("roomId", roomID))
	case wasInterviewer:
		m.grace.Schedule(roomID)
		m.logger.Info("interviewer left, grace period started", zap.String("roomId", roomID))
	}
	return nil
}

// ExpireGrace ends roomID unless an Interviewer came back in time.
func (m *RoomManager) ExpireGrace(roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), expireTimeout)
	defer cancel()

	room, err := m.store.GetRoom(ctx, roomID)
	if errors.Is(err, repositories.ErrRoomNotFound) {
		return
	}
	if err != nil {
		m.logger.Error("grace expiry could not load room", zap.String("roomId", roomID), zap.Error(err))
		return
	}
	if room.HasInterviewer() {
		return
	}
	if err := m.EndRoom(ctx, roomID, ReasonGraceExpired); err != nil {
		m.logger.Error("failed to end room after grace period", zap.String("roomId", roomID), zap.Error(err))
	}
}

// EndRoom tells every connection the room is over, deletes it and publishes
// a room_ended event.
func (m *RoomManager) EndRoom(ctx context.Context, roomID, reason string) error {
	m.grace.Cancel(roomID)
	m.hub.Broadcast(roomID, models.WSFrame{
		Type: models.EventRoomEnded,
		Data: models.RoomEnded{Message: models.RoomEndedMessage},
	})
	m.hub.CloseRoom(roomID)

	if _, err := m.store.DeleteRoom(ctx, roomID); err != nil {
		return err
	}
	metrics.RoomEnded(reason)

	evt := models.RoomEndedEvent{RoomID: roomID, Reason: reason, EndedAt: m.now().UTC()}
	if err := m.store.PublishRoomEnded(ctx, evt); err != nil {
		m.logger.Warn("failed to publish room_ended", zap.String("roomId", roomID), zap.Error(err))
	}
	m.logger.Info("room ended", zap.String("roomId", roomID), zap.String("reason", reason))
	return nil
}

// SetDocument stores text and relays it to everyone but the sender.
func (m *RoomManager) SetDocument(ctx context.Context, roomID, senderConnID, text string) error {
	if _, err := m.store.UpdateRoom(ctx, roomID, func(r *models.Room) error {
		r.Document = text
		return nil
	}); err != nil {
		return err
	}
	m.hub.BroadcastExcept(roomID, senderConnID, models.WSFrame{
		Type: models.EventCodeChange,
		Data: models.CodeChanged{Text: text},
	})
	return nil
}

// ResetDocument clears the document for every connection, sender included.
func (m *RoomManager) ResetDocument(ctx context.Context, roomID string) error {
	if _, err := m.store.UpdateRoom(ctx, roomID, func(r *models.Room) error {
		r.Document = ""
		return nil
	}); err != nil {
		return err
	}
	m.hub.Broadcast(roomID, models.WSFrame{
		Type: models.EventCodeChange,
		Data: models.CodeChanged{Text: ""},
	})
	return nil
}

func (m *RoomManager) SetLanguage(ctx context.Context, roomID string, lang models.Language) error {
	if !lang.Valid() {
		return exec.ErrInvalidLanguage
	}
	if _, err := m.store.UpdateRoom(ctx, roomID, func(r *models.Room) error {
		r.Language = lang
		return nil
	}); err != nil {
		return err
	}
	m.hub.Broadcast(roomID, models.WSFrame{
		Type: models.EventLanguageChange,
		Data: models.LanguageChanged{Language: lang},
	})
	return nil
}

func (m *RoomManager) SetTestInput(ctx context.Context, roomID, input string) error {
	if _, err := m.store.UpdateRoom(ctx, roomID, func(r *models.Room) error {
		r.Input = input
		return nil
	}); err != nil {
		return err
	}
	m.hub.Broadcast(roomID, models.WSFrame{
		Type: models.EventInputChange,
		Data: models.InputChanged{Input: input},
	})
	return nil
}

// SetSelectedQuestion resolves questionID in the catalog before storing it and
// broadcasts the full question body.
func (m *RoomManager) SetSelectedQuestion(ctx context.Context, roomID, questionID string) error {
	if exists, err := m.store.RoomExists(ctx, roomID); err != nil {
		return err
	} else if !exists {
		return repositories.ErrRoomNotFound
	}

	q, err := m.catalog.GetByID(ctx, questionID)
	if err != nil {
		return err
	}
	if _, err := m.store.UpdateRoom(ctx, roomID, func(r *models.Room) error {
		id := q.ID
		r.SelectedQuestionID = &id
		return nil
	}); err != nil {
		return err
	}
	m.hub.Broadcast(roomID, models.WSFrame{
		Type: models.EventSetQuestion,
		Data: models.QuestionSelected{Question: q},
	})
	return nil
}

// DispatchExecution runs code for a room and broadcasts one execution-result.
// Invalid requests and unknown rooms are dropped; provider failures are
// broadcast as an error result.
func (m *RoomManager) DispatchExecution(ctx context.Context, roomID, connID string, run models.RunExecutePayload) {
	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		if !errors.Is(err, repositories.ErrRoomNotFound) {
			m.logger.Warn("execution dropped, room lookup failed", zap.String("roomId", roomID), zap.Error(err))
		}
		return
	}
	if err := m.executor.Validate(run.Language, run.Code); err != nil {
		m.logger.Debug("execution dropped, invalid payload", zap.String("roomId", roomID), zap.Error(err))
		return
	}

	var by *models.Participant
	if p := room.Participant(connID); p != nil {
		submitter := *p
		by = &submitter
	}
	input := run.Input

	result := models.ExecutionResult{Input: &input, By: by}
	rec := &models.ExecutionRecord{
		RoomID:       roomID,
		ConnectionID: connID,
		Source:       models.ExecutionSourceRoom,
		Language:     run.Language,
		Code:         run.Code,
		Input:        run.Input,
		Provider:     m.executor.ProviderName(),
	}
	if by != nil {
		rec.DisplayName = by.DisplayName
	}

	res, err := m.executor.Execute(ctx, exec.Request{Language: run.Language, Code: run.Code, Input: run.Input})
	if err != nil {
		result.Error = exec.ErrorCode(err)
		var perr *exec.ProviderError
		if errors.As(err, &perr) {
			result.Detail = perr.Detail
		}
		rec.ErrorCode = result.Error
	} else {
		result.Stdout = &res.Stdout
		result.Stderr = &res.Stderr
		result.TimeMs = &res.TimeMs
		result.Status = res.Status
		result.MemoryKb = res.MemoryKb

		rec.Stdout = res.Stdout
		rec.Stderr = res.Stderr
		rec.TimeMs = res.TimeMs
		rec.MemoryKb = res.MemoryKb
		rec.Status = res.Status
	}

	m.hub.Broadcast(roomID, models.WSFrame{Type: models.EventExecutionResult, Data: result})
	m.record(ctx, rec)
}

func (m *RoomManager) record(ctx context.Context, rec *models.ExecutionRecord) {
	if m.recorder == nil {
		return
	}
	if err := m.recorder.Record(ctx, rec); err != nil {
		m.logger.Error("failed to record execution", zap.String("roomId", rec.RoomID), zap.Error(err))
	}
}

// CreateRoom allocates a fresh room id, retrying on collision.
func (m *RoomManager) CreateRoom(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxRoomIDAttempts; attempt++ {
		id := m.newID()
		_, err := m.store.CreateRoom(ctx, id)
		if errors.Is(err, repositories.ErrRoomExists) {
			continue
		}
		if err != nil {
			return "", err
		}
		m.logger.Info("room created", zap.String("roomId", id))
		return id, nil
	}
	return "", ErrRoomIDExhausted
}

func (m *RoomManager) RoomExists(ctx context.Context, roomID string) (bool, error) {
	return m.store.RoomExists(ctx, roomID)
}

func (m *RoomManager) Snapshot(ctx context.Context, roomID string) (*models.Room, error) {
	return m.store.GetRoom(ctx, roomID)
}

func (m *RoomManager) ListRooms(ctx context.Context) ([]models.RoomSummary, error) {
	rooms, err := m.store.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, models.RoomSummary{
			RoomID:       r.RoomID,
			Participants: r.Participants,
			LastUpdated:  r.LastUpdated,
		})
	}
	return out, nil
}

// ReapIdleRooms ends rooms untouched for longer than ttl whose participants
// are all ghosts. Rooms waiting on a grace timer are left alone.
func (m *RoomManager) ReapIdleRooms(ctx context.Context, ttl time.Duration) (int, error) {
	rooms, err := m.store.ListRooms(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := m.now().UTC().Add(-ttl)
	reaped := 0
	for _, r := range rooms {
		if r.LastUpdated.After(cutoff) || m.grace.IsPending(r.RoomID) || m.hasLiveParticipant(r) {
			continue
		}
		if err := m.EndRoom(ctx, r.RoomID, ReasonIdle); err != nil {
			return reaped, err
		}
		reaped++
	}
	return reaped, nil
}

func (m *RoomManager) hasLiveParticipant(r *models.Room) bool {
	for _, p := range r.Participants {
		if m.registry.Has(p.ConnectionID) {
			return true
		}
	}
	return false
}

// Shutdown disarms every pending grace timer.
func (m *RoomManager) Shutdown() {
	m.grace.Stop()
}

func (m *RoomManager) broadcastParticipants(room *models.Room) {
	m.hub.Broadcast(room.RoomID, models.WSFrame{
		Type: models.EventParticipantsUpdated,
		Data: models.ParticipantsUpdated{Participants: room.Participants},
	})
}
