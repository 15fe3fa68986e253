package domain

// SessionState is the lifecycle state of a Session.
type SessionState string

const (
	SessionPending    SessionState = "pending"
	SessionInProgress SessionState = "in_progress"
	SessionCompleted  SessionState = "completed"
)

// Valid reports whether s is a known state.
func (s SessionState) Valid() bool {
	switch s {
	case SessionPending, SessionInProgress, SessionCompleted:
		return true
	}
	return false
}

// PendingConclusion is stored in both conclusion fields until completion.
const PendingConclusion = "No se ha proporcionado todavía"

// SessionAggregates are the session-level averages over its three scores.
// Recall is the average accuracy rate.
type SessionAggregates struct {
	Recall     float64 `json:"recall"`
	Commission float64 `json:"commission"`
	Omission   float64 `json:"omission"`
	Coherence  float64 `json:"coherence"`
	Fluency    float64 `json:"fluency"`
	Total      float64 `json:"total"`
}

// SessionConclusion is the narrative produced when a session completes.
type SessionConclusion struct {
	TechnicalConclusion string `json:"technicalConclusion"`
	PlainConclusion     string `json:"plainConclusion"`
}

// EvaluationResult is the validated evaluator output for one description.
// List fields are never nil.
type EvaluationResult struct {
	OmissionRate       float64  `json:"omissionRate"`
	CommissionRate     float64  `json:"commissionRate"`
	AccuracyRate       float64  `json:"accuracyRate"`
	CoherenceScore     float64  `json:"coherenceScore"`
	FluencyScore       float64  `json:"fluencyScore"`
	TotalScore         float64  `json:"totalScore"`
	OmittedDetails     []string `json:"omittedDetails"`
	OmittedKeywords    []string `json:"omittedKeywords"`
	CommissionElements []string `json:"commissionElements"`
	CorrectElements    []string `json:"correctElements"`
	Conclusion         string   `json:"conclusion"`
}
