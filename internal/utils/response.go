package utils

import "time"

// APIResponse is the envelope every JSON endpoint returns. Data carries the
// payload on success; on conflicts it may carry a ticket snapshot so door
// staff can see the state that caused the refusal.
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func ErrorResponse(message, detail string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     detail,
		Timestamp: time.Now(),
	}
}

// ConflictResponse is an error envelope that still carries a snapshot,
// used when a validation or transition is refused because of the ticket's
// current state.
func ConflictResponse(message, detail string, snapshot interface{}) APIResponse {
	resp := ErrorResponse(message, detail)
	resp.Data = snapshot
	return resp
}
