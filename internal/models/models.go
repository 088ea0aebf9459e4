package models

import (
	"encoding/json"
	"time"
)

type Language string

const (
	LangJavaScript Language = "javascript"
	LangPython     Language = "python"
	LangJava       Language = "java"
	LangCPP        Language = "cpp"
)

// DefaultLanguage is the language of a freshly created room.
const DefaultLanguage = LangJavaScript

var SupportedLanguages = []Language{LangJavaScript, LangPython, LangJava, LangCPP}

func (l Language) Valid() bool {
	switch l {
	case LangJavaScript, LangPython, LangJava, LangCPP:
		return true
	}
	return false
}

type Role string

const (
	RoleInterviewer Role = "Interviewer"
	RoleCandidate   Role = "Candidate"
)

// one connection's membership record, embedded in a Room
type Participant struct {
	ConnectionID string    `json:"socketId"`
	DisplayName  string    `json:"displayName"`
	Role         Role      `json:"role"`
	JoinedAt     time.Time `json:"joinedAt"`
}

/*** Room state, persisted as one JSON document per room ***/
type Room struct {
	RoomID             string        `json:"roomId"`
	Participants       []Participant `json:"participants"`
	Language           Language      `json:"language"`
	Document           string        `json:"document"`
	Input              string        `json:"input"`
	SelectedQuestionID *string       `json:"selectedQuestionId"`
	CreatedAt          time.Time     `json:"createdAt"`
	LastUpdated        time.Time     `json:"lastUpdated"`
}

func NewRoom(roomID string, now time.Time) *Room {
	return &Room{
		RoomID:       roomID,
		Participants: []Participant{},
		Language:     DefaultLanguage,
		CreatedAt:    now,
		LastUpdated:  now,
	}
}

// Participant returns the record for connID, or nil.
func (r *Room) Participant(connID string) *Participant {
	for i := range r.Participants {
		if r.Participants[i].ConnectionID == connID {
			return &r.Participants[i]
		}
	}
	return nil
}

func (r *Room) HasInterviewer() bool {
	for _, p := range r.Participants {
		if p.Role == RoleInterviewer {
			return true
		}
	}
	return false
}

// RemoveParticipant drops connID and returns the removed record, if any.
func (r *Room) RemoveParticipant(connID string) *Participant {
	for i, p := range r.Participants {
		if p.ConnectionID == connID {
			removed := p
			r.Participants = append(r.Participants[:i], r.Participants[i+1:]...)
			return &removed
		}
	}
	return nil
}

// Snapshot handed back to a joining connection
type JoinSnapshot struct {
	Role               Role          `json:"role"`
	Participants       []Participant `json:"participants"`
	Language           Language      `json:"language"`
	Document           string        `json:"document"`
	Input              string        `json:"input"`
	SelectedQuestionID *string       `json:"selectedQuestionId"`
}

// RoomSummary is the operational listing shape for GET /api/rooms.
type RoomSummary struct {
	RoomID       string        `json:"roomId"`
	Participants []Participant `json:"participants"`
	LastUpdated  time.Time     `json:"lastUpdated"`
}

/*** WebSocket framing ***/

// outbound frame
type WSFrame struct {
	Type  string `json:"type"`
	ReqID string `json:"reqId,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// inbound frame; Data is decoded per event type
type ClientFrame struct {
	Type  string          `json:"type"`
	ReqID string          `json:"reqId,omitempty"`
	Data  json.RawMessage `json:"data"`
}

const (
	EventJoinRoom            = "join-room"
	EventLeaveRoom           = "leave-room"
	EventCodeChange          = "code-change"
	EventLanguageChange      = "language-change"
	EventInputChange         = "input-change"
	EventResetDocument       = "reset-document"
	EventSetQuestion         = "set-question"
	EventRunExecute          = "run-execute"
	EventParticipantsUpdated = "participants-updated"
	EventExecutionResult     = "execution-result"
	EventRoomEnded           = "room-ended"
	EventError               = "error"
)

type JoinRoomPayload struct {
	RoomID      string `json:"roomId"`
	DisplayName string `json:"displayName"`
}

type LeaveRoomPayload struct {
	RoomID  string `json:"roomId"`
	EndRoom bool   `json:"endRoom,omitempty"`
}

type CodeChangePayload struct {
	RoomID string  `json:"roomId"`
	Text   *string `json:"text"`
}

type LanguageChangePayload struct {
	RoomID   string   `json:"roomId"`
	Language Language `json:"language"`
}

type InputChangePayload struct {
	RoomID string  `json:"roomId"`
	Input  *string `json:"input"`
}

type RoomRefPayload struct {
	RoomID string `json:"roomId"`
}

type SetQuestionPayload struct {
	RoomID     string `json:"roomId"`
	QuestionID string `json:"questionId"`
}

type RunExecutePayload struct {
	RoomID   string   `json:"roomId"`
	Language Language `json:"language"`
	Code     string   `json:"code"`
	Input    string   `json:"input"`
}

type ParticipantsUpdated struct {
	Participants []Participant `json:"participants"`
}

type CodeChanged struct {
	Text string `json:"text"`
}

type LanguageChanged struct {
	Language Language `json:"language"`
}

type InputChanged struct {
	Input string `json:"input"`
}

type QuestionSelected struct {
	Question *Question `json:"question"`
}

type RoomEnded struct {
	Message string `json:"message"`
}

// RoomEndedMessage is shown to every connection when a room is torn down.
const RoomEndedMessage = "Interviewer has left the room. Redirecting to home..."

// room_ended pub/sub payload for downstream consumers
type RoomEndedEvent struct {
	RoomID  string    `json:"roomId"`
	Reason  string    `json:"reason"`
	EndedAt time.Time `json:"endedAt"`
}

// execution-result broadcast; pointer fields are omitted when the provider does not report them
type ExecutionResult struct {
	Stdout   *string      `json:"stdout,omitempty"`
	Stderr   *string      `json:"stderr,omitempty"`
	TimeMs   *int64       `json:"timeMs,omitempty"`
	Status   string       `json:"status,omitempty"`
	MemoryKb *int64       `json:"memoryKb,omitempty"`
	Error    string       `json:"error,omitempty"`
	Detail   string       `json:"detail,omitempty"`
	Input    *string      `json:"input,omitempty"`
	By       *Participant `json:"by,omitempty"`
}
