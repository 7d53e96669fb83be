package audit

import (
	"time"

	"github.com/hzi-braunschweig/pia-system/pkg/domain"
)

// Event is emitted from domain logic to capture key actions of the
// registration and verification flow. Keep it transport-agnostic so stores
// and sinks can fan out.
type Event struct {
	Timestamp time.Time        `json:"timestamp"`
	UserID    domain.UserID    `json:"user_id,omitempty"`
	SessionID domain.SessionID `json:"session_id,omitempty"`
	Action    Action           `json:"action"`
	Email     string           `json:"email,omitempty"`
	Study     domain.StudyID   `json:"study,omitempty"`
	ClientID  string           `json:"client_id,omitempty"`
	RequestID string           `json:"request_id,omitempty"`
	// Error carries the failure reason for *_failed actions.
	Error string `json:"error,omitempty"`
}

// Action identifies what happened. Stable strings; the event history service
// consumes them downstream.
type Action string

const (
	ActionRegistrationCompleted Action = "registration_completed"
	ActionSendVerifyEmail       Action = "send_verify_email"
	ActionEmailSendFailed       Action = "email_send_failed"
	ActionVerifyEmail           Action = "verify_email"
	ActionVerifyEmailRebound    Action = "verify_email_rebound"
)
