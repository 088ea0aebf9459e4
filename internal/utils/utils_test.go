package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"codesync/internal/models"
)

func TestJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	JSON(rr, http.StatusCreated, map[string]string{"roomId": "abc"})

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(rr.Body.String(), `"roomId":"abc"`) {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}

func TestError(t *testing.T) {
	rr := httptest.NewRecorder()
	Error(rr, http.StatusNotFound, models.ErrCodeNotFound, "")

	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body["error"] != models.ErrCodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", body)
	}
	if _, ok := body["message"]; ok {
		t.Fatal("empty message should be omitted")
	}
}

func TestNewRoomID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 500; i++ {
		id := NewRoomID()
		if len(id) != RoomIDLength {
			t.Fatalf("expected length %d, got %q", RoomIDLength, id)
		}
		for _, ch := range id {
			if !strings.ContainsRune(roomAlphabet, ch) {
				t.Fatalf("unexpected character %q in %q", ch, id)
			}
		}
		seen[id] = struct{}{}
	}
	if len(seen) < 499 {
		t.Fatalf("expected ids to be unique, got %d distinct", len(seen))
	}
}

func TestNewRoomIDSpreadsEveryPosition(t *testing.T) {
	const samples = 2000
	var seen [RoomIDLength]map[byte]struct{}
	for i := range seen {
		seen[i] = make(map[byte]struct{})
	}
	for i := 0; i < samples; i++ {
		id := NewRoomID()
		for pos := 0; pos < RoomIDLength; pos++ {
			seen[pos][id[pos]] = struct{}{}
		}
	}
	// a fixed UUID nibble would pin a position to at most 16 characters
	for pos, chars := range seen {
		if len(chars) < 40 {
			t.Fatalf("position %d only produced %d distinct characters", pos, len(chars))
		}
	}
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"", "info", "DEBUG"} {
		logger, err := NewLogger(level)
		if err != nil || logger == nil {
			t.Fatalf("level %q: unexpected error %v", level, err)
		}
	}
}
