package repositories

import "errors"

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomExists       = errors.New("room already exists")
	ErrQuestionNotFound = errors.New("question not found")
	// returned when a room stays contended past maxTxRetries
	ErrTxContention = errors.New("room update contention")
)
