package api

import (
	"github.com/satriahrh/casava/domain/entities"
	"github.com/satriahrh/casava/domain/repositories"
)

// TextRequest carries a chat message or a draft
type TextRequest struct {
	Text string `json:"text"`
}

// LanguageRequest selects the conversation language
type LanguageRequest struct {
	Language string `json:"language"`
}

// RecordingRequest optionally carries the browser's microphone permission answer
type RecordingRequest struct {
	Granted *bool `json:"granted,omitempty"`
}

// LoginRequest represents the request payload for login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents the response payload for login
type LoginResponse struct {
	Authenticated bool               `json:"authenticated"`
	Identity      *entities.Identity `json:"identity,omitempty"`
}

// DiagnoseResponse is a classification plus whether the detail sections
// are confident enough to show
type DiagnoseResponse struct {
	*entities.Classification
	ShowDetails bool `json:"show_details"`
}

// UsersResponse is the admin user listing
type UsersResponse = repositories.UserList

// MessageResponse carries a server message
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
