package models

// uniform error payload
type ErrorResponse struct {
	Code    string `json:"error"`
	Message string `json:"message,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// implements error so Validate() can return the payload directly
func (e *ErrorResponse) Error() string {
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	return e.Code
}

// error codes shared by the HTTP and real-time surfaces
const (
	ErrCodeInvalidJSON           = "INVALID_JSON"
	ErrCodeInvalidLanguage       = "INVALID_LANGUAGE"
	ErrCodeInvalidCode           = "INVALID_CODE"
	ErrCodeCodeTooLarge          = "CODE_TOO_LARGE"
	ErrCodeRateLimit             = "RATE_LIMIT"
	ErrCodeProviderError         = "PROVIDER_ERROR"
	ErrCodeProviderNotConfigured = "PROVIDER_NOT_CONFIGURED"
	ErrCodeNotFound              = "NOT_FOUND"
	ErrCodeJoinFailed            = "JOIN_FAILED"
	ErrCodeInternal              = "INTERNAL"
	ErrCodeUnknownType           = "UNKNOWN_TYPE"
)

type RoomCreatedResponse struct {
	RoomID string `json:"roomId"`
}

type RoomExistsResponse struct {
	Exists bool `json:"exists"`
}

type RoomsResponse struct {
	Rooms []RoomSummary `json:"rooms"`
}
