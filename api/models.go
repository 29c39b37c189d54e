package handler

import (
	"mindforu/internal/models"
	"mindforu/internal/vapi"
)

// Response is the envelope of every JSON reply
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// RegisterRequest is the body of POST /api/auth/register
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
}

// LoginRequest is the body of POST /api/auth/login
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SessionResponse is returned on login and registration
type SessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expiresAt"`
	User      *models.User `json:"user"`
}

// AssistantRequest creates or edits an assistant. On update, empty fields
// are left unchanged.
type AssistantRequest struct {
	Name         string               `json:"name"`
	FirstMessage string               `json:"firstMessage"`
	SystemPrompt string               `json:"systemPrompt"`
	Model        *vapi.AssistantModel `json:"model"`
	Voice        *vapi.AssistantVoice `json:"voice"`
}

// PhoneNumberRequest creates or edits a phone number. AssistantID is our
// assistant ID; an empty string unassigns the number on update.
type PhoneNumberRequest struct {
	Provider    string  `json:"provider"`
	Number      string  `json:"number"`
	Name        string  `json:"name"`
	AreaCode    string  `json:"areaCode"`
	AssistantID *string `json:"assistantId"`
}

// ImportAssistantsRequest is the body of POST /api/admin/assistants/import.
// An empty VapiAssistantIDs imports every assistant not already known.
type ImportAssistantsRequest struct {
	UserID           string   `json:"userId" binding:"required"`
	VapiAssistantIDs []string `json:"vapiAssistantIds"`
}

// AssignAssistantRequest is the body of POST /api/admin/assistants/:id/assign
type AssignAssistantRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// Page wraps a paginated listing
type Page struct {
	Items any   `json:"items"`
	Total int64 `json:"total"`
	Page  int64 `json:"page"`
	Limit int64 `json:"limit"`
}
