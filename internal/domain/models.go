// Package domain defines the persistence models for images, ground truths,
// sessions, descriptions and scores. These types are mapped with GORM and form
// the core data layer of the image-description assessment service.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Image is a photograph uploaded by a caregiver to the object store.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - URL: public (secure) URL returned by the object store.
//   - UploadedAt: upload timestamp; starts the 24h deletion window.
//   - CaregiverID: owner of the image (indexed).
//   - AssetID / PublicID / Format: object store metadata.
//   - SessionID: owning session, nil while unassigned.
//
// An image belongs to at most one session; a session holds at most three.
type Image struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	URL         string    `json:"url"          gorm:"type:text;not null"`
	UploadedAt  time.Time `json:"uploaded_at"  gorm:"not null"`
	CaregiverID string    `json:"caregiver_id" gorm:"type:varchar(64);not null;index:idx_caregiver_images"`
	AssetID     string    `json:"asset_id"     gorm:"type:varchar(255)"`
	PublicID    string    `json:"public_id"    gorm:"type:varchar(255)"`
	Format      string    `json:"format"       gorm:"type:varchar(32)"`
	SessionID   *string   `json:"session_id"   gorm:"type:char(36);index:idx_session_images"`

	// GroundTruth and Description are cascade-deleted with the image.
	GroundTruth *GroundTruth `json:"ground_truth,omitempty" gorm:"foreignKey:ImageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Description *Description `json:"description,omitempty"  gorm:"foreignKey:ImageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Image.
func (Image) TableName() string { return "images" }

// GroundTruth is the caregiver-authored reference description of an image.
// Keyword and guiding question order is preserved as written.
type GroundTruth struct {
	ID               string                      `json:"id"                gorm:"type:char(36);primaryKey"`
	Text             string                      `json:"text"              gorm:"type:text;not null"`
	Keywords         datatypes.JSONSlice[string] `json:"keywords"`
	GuidingQuestions datatypes.JSONSlice[string] `json:"guiding_questions"`
	CreatedAt        time.Time                   `json:"created_at"`
	ImageID          string                      `json:"image_id"          gorm:"type:char(36);not null;uniqueIndex:ux_groundtruth_image"`
}

// TableName returns the database table name for GroundTruth.
func (GroundTruth) TableName() string { return "ground_truths" }

// Session is a bounded set of up to three image-description tasks assigned to
// one patient by one caregiver. Aggregates and conclusions are populated only
// when the session completes.
type Session struct {
	ID              string       `json:"id"                gorm:"type:char(36);primaryKey"`
	PatientID       string       `json:"patient_id"        gorm:"type:varchar(64);not null;index:idx_patient_sessions,priority:1"`
	CaregiverID     string       `json:"caregiver_id"      gorm:"type:varchar(64);not null;index"`
	CreatedAt       time.Time    `json:"created_at"        gorm:"index:idx_patient_sessions,priority:2"`
	UpdatedAt       time.Time    `json:"updated_at"`
	ProposedStartAt *time.Time   `json:"proposed_start_at,omitempty"`
	State           SessionState `json:"state"             gorm:"type:varchar(16);not null;default:'pending';check:state IN ('pending','in_progress','completed')"`
	Activation      bool         `json:"activation"        gorm:"not null;default:false"`

	Recall     *float64 `json:"recall"`
	Commission *float64 `json:"commission"`
	Omission   *float64 `json:"omission"`
	Coherence  *float64 `json:"coherence"`
	Fluency    *float64 `json:"fluency"`
	Total      *float64 `json:"total"`

	TechnicalConclusion string     `json:"technical_conclusion" gorm:"type:text"`
	PlainConclusion     string     `json:"plain_conclusion"     gorm:"type:text"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	DoctorNotes         *string    `json:"doctor_notes,omitempty"       gorm:"type:text"`
	DoctorReviewedAt    *time.Time `json:"doctor_reviewed_at,omitempty"`

	// Images are detached (session_id set NULL) if the session row is removed.
	Images []Image `json:"images,omitempty" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "sessions" }

// Aggregates returns the session-level averages, or nil while any is unset.
func (s *Session) Aggregates() *SessionAggregates {
	if s.Recall == nil || s.Commission == nil || s.Omission == nil ||
		s.Coherence == nil || s.Fluency == nil || s.Total == nil {
		return nil
	}
	return &SessionAggregates{
		Recall:     *s.Recall,
		Commission: *s.Commission,
		Omission:   *s.Omission,
		Coherence:  *s.Coherence,
		Fluency:    *s.Fluency,
		Total:      *s.Total,
	}
}

// Description is a patient's free-text description of one image.
// At most one description exists per image.
type Description struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Text      string    `json:"text"       gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at"`
	PatientID string    `json:"patient_id" gorm:"type:varchar(64);not null;index"`
	ImageID   string    `json:"image_id"   gorm:"type:char(36);not null;uniqueIndex:ux_description_image"`

	// Score is cascade-deleted with its description.
	Score *Score `json:"score,omitempty" gorm:"foreignKey:DescriptionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Description.
func (Description) TableName() string { return "descriptions" }

// Score holds the evaluator's result for one description.
type Score struct {
	ID                 string                      `json:"id"              gorm:"type:char(36);primaryKey"`
	DescriptionID      string                      `json:"description_id"  gorm:"type:char(36);not null;uniqueIndex:ux_score_description"`
	OmissionRate       float64                     `json:"omission_rate"   gorm:"not null"`
	CommissionRate     float64                     `json:"commission_rate" gorm:"not null"`
	AccuracyRate       float64                     `json:"accuracy_rate"   gorm:"not null"`
	CoherenceScore     float64                     `json:"coherence_score" gorm:"not null"`
	FluencyScore       float64                     `json:"fluency_score"   gorm:"not null"`
	TotalScore         float64                     `json:"total_score"     gorm:"not null"`
	OmittedDetails     datatypes.JSONSlice[string] `json:"omitted_details"`
	OmittedKeywords    datatypes.JSONSlice[string] `json:"omitted_keywords"`
	CommissionElements datatypes.JSONSlice[string] `json:"commission_elements"`
	CorrectElements    datatypes.JSONSlice[string] `json:"correct_elements"`
	Conclusion         string                      `json:"conclusion"      gorm:"type:text;not null"`
	ComputedAt         time.Time                   `json:"computed_at"`
}

// TableName returns the database table name for Score.
func (Score) TableName() string { return "scores" }
