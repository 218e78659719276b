package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Submission is a student's writing for a project.
type Submission struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"project_id"`
	StudentID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"student_id"`
	ContentRaw  string     `gorm:"type:text" json:"content_raw"`
	Status      string     `gorm:"size:32;not null;default:DRAFT" json:"status"`
	SubmittedAt *time.Time `json:"submitted_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Project     *Project   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

const (
	// SubmissionStatusDraft marks work the student is still editing.
	SubmissionStatusDraft = "DRAFT"
	// SubmissionStatusSubmitted marks work handed in for marking.
	SubmissionStatusSubmitted = "SUBMITTED"
)

// IsSubmitted reports whether the submission can be graded.
func (s Submission) IsSubmitted() bool {
	return s.Status == SubmissionStatusSubmitted
}

// BeforeCreate assigns an identifier when none is set.
func (s *Submission) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
