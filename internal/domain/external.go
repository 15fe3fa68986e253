package domain

import (
	"errors"
	"time"
)

// ErrUserNotFound is returned by user directories when an id has no match.
var ErrUserNotFound = errors.New("user not found")

// StoredObject is what the object store reports after an upload.
type StoredObject struct {
	SecureURL string    `json:"secureUrl"`
	AssetID   string    `json:"assetId"`
	PublicID  string    `json:"publicId"`
	Format    string    `json:"format"`
	CreatedAt time.Time `json:"createdAt"`
}

// Notification events.
const (
	EventLowScore          = "description.low_score"
	EventBaselineRecorded  = "session.baseline_recorded"
	EventActivationChanged = "session.activation_changed"
)

// Notification is a best-effort message to a user (email, alert bus).
type Notification struct {
	Event       string         `json:"event"`
	RecipientID string         `json:"recipient_id"`
	ToName      string         `json:"to_name,omitempty"`
	ToEmail     string         `json:"to_email,omitempty"`
	Subject     string         `json:"subject"`
	Payload     map[string]any `json:"payload"`
	CreatedAt   time.Time      `json:"created_at"`
}

// EvaluationRequest is the input of a per-description evaluation.
type EvaluationRequest struct {
	PatientText   string   `json:"patientText"`
	ReferenceText string   `json:"referenceText"`
	Keywords      []string `json:"keywords"`
}

// SummaryRequest is the input of a session summary.
type SummaryRequest struct {
	Recall           float64  `json:"recall"`
	Commission       float64  `json:"commission"`
	Omission         float64  `json:"omission"`
	Coherence        float64  `json:"coherence"`
	Fluency          float64  `json:"fluency"`
	Total            float64  `json:"total"`
	PriorConclusions []string `json:"priorConclusions"`
}
