package utils

import "github.com/google/uuid"

const (
	RoomIDLength = 10
	roomAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// UUID bytes that carry randomness; byte 6 holds the version nibble and
// byte 8 the variant bits.
var roomIDBytes = [RoomIDLength]int{0, 1, 2, 3, 4, 5, 7, 9, 10, 11}

// NewRoomID returns a random 10-character alphanumeric id drawn from the
// random bytes of a v4 UUID.
func NewRoomID() string {
	raw := uuid.New()
	out := make([]byte, RoomIDLength)
	for i, b := range roomIDBytes {
		out[i] = roomAlphabet[int(raw[b])%len(roomAlphabet)]
	}
	return string(out)
}
