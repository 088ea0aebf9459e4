package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"codesync/internal/models"
)

const (
	activeRoomsKey = "rooms:active"
	// RoomEndedChannel carries models.RoomEndedEvent payloads.
	RoomEndedChannel = "room_ended"

	maxTxRetries   = 64
	connIndexTTL   = 24 * time.Hour
	txRetryBackoff = 2 * time.Millisecond
)

func roomKey(roomID string) string      { return "room:" + roomID }
func connRoomsKey(connID string) string { return "conn:" + connID + ":rooms" }

// RoomRepository is the Redis-backed membership store. Every room is one JSON
// document; a per-connection set indexes the rooms a connection is recorded in.
type RoomRepository struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRoomRepository(rdb *redis.Client) *RoomRepository {
	return &RoomRepository{rdb: rdb, now: time.Now}
}

func (r *RoomRepository) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// UpsertRoom returns the room, creating an empty one if it does not exist.
// Racing creators converge on whichever SETNX won.
func (r *RoomRepository) UpsertRoom(ctx context.Context, roomID string) (*models.Room, error) {
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		room := models.NewRoom(roomID, r.now().UTC())
		created, err := r.setIfAbsent(ctx, room)
		if err != nil {
			return nil, err
		}
		if created {
			return room, nil
		}

		existing, err := r.GetRoom(ctx, roomID)
		if errors.Is(err, ErrRoomNotFound) {
			// deleted between SETNX and GET
			continue
		}
		return existing, err
	}
	return nil, ErrTxContention
}

// CreateRoom stores a new empty room and fails with ErrRoomExists on collision.
func (r *RoomRepository) CreateRoom(ctx context.Context, roomID string) (*models.Room, error) {
	room := models.NewRoom(roomID, r.now().UTC())
	created, err := r.setIfAbsent(ctx, room)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, ErrRoomExists
	}
	return room, nil
}

func (r *RoomRepository) setIfAbsent(ctx context.Context, room *models.Room) (bool, error) {
	data, err := json.Marshal(room)
	if err != nil {
		return false, fmt.Errorf("failed to encode room: %w", err)
	}

	var setCmd *redis.BoolCmd
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		setCmd = pipe.SetNX(ctx, roomKey(room.RoomID), data, 0)
		pipe.SAdd(ctx, activeRoomsKey, room.RoomID)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to create room %s: %w", room.RoomID, err)
	}
	return setCmd.Val(), nil
}

func (r *RoomRepository) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	raw, err := r.rdb.Get(ctx, roomKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load room %s: %w", roomID, err)
	}
	return decodeRoom(raw)
}

func (r *RoomRepository) RoomExists(ctx context.Context, roomID string) (bool, error) {
	n, err := r.rdb.Exists(ctx, roomKey(roomID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateRoom applies fn to the current room inside an optimistic transaction,
// retrying when another writer touched the room first. fn may run several
// times and must only mutate the room it is given. When fn removes the last
// participant the room is deleted in the same transaction; the returned room
// then has no participants.
func (r *RoomRepository) UpdateRoom(ctx context.Context, roomID string, fn func(*models.Room) error) (*models.Room, error) {
	key := roomKey(roomID)

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		var result *models.Room

		err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return ErrRoomNotFound
			}
			if err != nil {
				return err
			}
			room, err := decodeRoom(raw)
			if err != nil {
				return err
			}

			before := connectionSet(room)
			if err := fn(room); err != nil {
				return err
			}
			room.LastUpdated = r.now().UTC()
			after := connectionSet(room)

			emptied := len(before) > 0 && len(room.Participants) == 0

			data, err := json.Marshal(room)
			if err != nil {
				return fmt.Errorf("failed to encode room: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if emptied {
					pipe.Del(ctx, key)
					pipe.SRem(ctx, activeRoomsKey, roomID)
				} else {
					pipe.Set(ctx, key, data, 0)
				}
				for connID := range before {
					if _, still := after[connID]; !still {
						pipe.SRem(ctx, connRoomsKey(connID), roomID)
					}
				}
				for connID := range after {
					if _, had := before[connID]; !had {
						pipe.SAdd(ctx, connRoomsKey(connID), roomID)
						pipe.Expire(ctx, connRoomsKey(connID), connIndexTTL)
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			result = room
			return nil
		}, key)

		switch {
		case err == nil:
			return result, nil
		case errors.Is(err, redis.TxFailedErr):
			time.Sleep(txRetryBackoff)
			continue
		default:
			return nil, err
		}
	}
	return nil, ErrTxContention
}

// DeleteRoom removes the room and its index entries. It reports whether a
// room was actually deleted.
func (r *RoomRepository) DeleteRoom(ctx context.Context, roomID string) (bool, error) {
	key := roomKey(roomID)

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		deleted := false
		err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return nil
			}
			if err != nil {
				return err
			}
			room, err := decodeRoom(raw)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.SRem(ctx, activeRoomsKey, roomID)
				for _, p := range room.Participants {
					pipe.SRem(ctx, connRoomsKey(p.ConnectionID), roomID)
				}
				return nil
			})
			if err == nil {
				deleted = true
			}
			return err
		}, key)

		switch {
		case err == nil:
			return deleted, nil
		case errors.Is(err, redis.TxFailedErr):
			time.Sleep(txRetryBackoff)
			continue
		default:
			return false, fmt.Errorf("failed to delete room %s: %w", roomID, err)
		}
	}
	return false, ErrTxContention
}

// RoomsForConnection lists every room connID is recorded in.
func (r *RoomRepository) RoomsForConnection(ctx context.Context, connID string) ([]string, error) {
	return r.rdb.SMembers(ctx, connRoomsKey(connID)).Result()
}

// ListRooms returns every active room. Index entries whose room document is
// gone are pruned.
func (r *RoomRepository) ListRooms(ctx context.Context) ([]*models.Room, error) {
	ids, err := r.rdb.SMembers(ctx, activeRoomsKey).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*models.Room{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = roomKey(id)
	}
	values, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	rooms := make([]*models.Room, 0, len(ids))
	var stale []any
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		room, err := decodeRoom([]byte(s))
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	if len(stale) > 0 {
		r.rdb.SRem(ctx, activeRoomsKey, stale...)
	}
	return rooms, nil
}

// PublishRoomEnded notifies subscribers of the room_ended channel.
func (r *RoomRepository) PublishRoomEnded(ctx context.Context, evt models.RoomEndedEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, RoomEndedChannel, data).Err()
}

func decodeRoom(raw []byte) (*models.Room, error) {
	var room models.Room
	if err := json.Unmarshal(raw, &room); err != nil {
		return nil, fmt.Errorf("failed to decode room: %w", err)
	}
	if room.Participants == nil {
		room.Participants = []models.Participant{}
	}
	return &room, nil
}

func connectionSet(room *models.Room) map[string]struct{} {
	set := make(map[string]struct{}, len(room.Participants))
	for _, p := range room.Participants {
		set[p.ConnectionID] = struct{}{}
	}
	return set
}
