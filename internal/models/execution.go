package models

import (
	"strings"
	"time"
)

// ExecutionRecord is the write-only audit row for every dispatched run.
type ExecutionRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	RoomID       string    `gorm:"index;size:32" json:"roomId"`
	ConnectionID string    `gorm:"size:64" json:"userId"`
	DisplayName  string    `json:"displayName"`
	Source       string    `gorm:"size:16" json:"source"`
	Language     Language  `gorm:"size:16" json:"language"`
	Code         string    `gorm:"type:text" json:"code"`
	Input        string    `gorm:"type:text" json:"input"`
	Stdout       string    `gorm:"type:text" json:"stdout"`
	Stderr       string    `gorm:"type:text" json:"stderr"`
	TimeMs       int64     `json:"timeMs"`
	MemoryKb     *int64    `json:"memoryKb,omitempty"`
	Status       string    `json:"status"`
	ErrorCode    string    `gorm:"size:64" json:"error,omitempty"`
	Provider     string    `gorm:"size:32" json:"provider"`
	ExecutedAt   time.Time `gorm:"index" json:"executedAt"`
}

func (ExecutionRecord) TableName() string { return "execution_records" }

const (
	ExecutionSourceRoom = "room"
	ExecutionSourceAPI  = "api"
)

// body of POST /api/execute
type ExecuteRequest struct {
	Language Language `json:"language"`
	Code     string   `json:"code"`
	Input    string   `json:"input"`
}

// implements the Validator interface
func (r *ExecuteRequest) Validate() error {
	r.Language = Language(strings.ToLower(strings.TrimSpace(string(r.Language))))
	if !r.Language.Valid() {
		return &ErrorResponse{
			Code:    ErrCodeInvalidLanguage,
			Message: "Language not supported. Supported languages: javascript, python, java, cpp",
		}
	}
	if r.Code == "" {
		return &ErrorResponse{
			Code:    ErrCodeInvalidCode,
			Message: "Code field is required",
		}
	}
	return nil
}

// synchronous execution response
type ExecuteResponse struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	TimeMs   int64  `json:"timeMs"`
	Status   string `json:"status,omitempty"`
	MemoryKb *int64 `json:"memoryKb,omitempty"`
}

// RoomHistory is written once per ended room by the room_ended subscriber.
type RoomHistory struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RoomID     string    `gorm:"not null;index;size:32" json:"roomId"`
	Reason     string    `gorm:"size:32" json:"reason"`
	Executions int64     `json:"executions"`
	EndedAt    time.Time `gorm:"index" json:"endedAt"`
}

func (RoomHistory) TableName() string { return "room_histories" }
