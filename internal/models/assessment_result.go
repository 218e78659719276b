package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-writing-api/internal/marking"
)

// AssessmentResult is the stored marking outcome for a submission. At most one
// non-deleted row exists per submission and rows are never updated.
type AssessmentResult struct {
	ID                uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	SubmissionID      uuid.UUID                   `gorm:"type:uuid;not null;uniqueIndex:idx_assessment_results_submission,where:deleted_at IS NULL" json:"submission_id"`
	Genre             string                      `gorm:"size:32;not null" json:"genre"`
	TotalScore        int                         `gorm:"not null" json:"total_score"`
	MaxScore          int                         `gorm:"not null" json:"max_score"`
	GeneratedAt       time.Time                   `gorm:"not null" json:"generated_at"`
	OverallStrengths  datatypes.JSONSlice[string] `json:"overall_strengths"`
	OverallWeaknesses datatypes.JSONSlice[string] `json:"overall_weaknesses"`
	CriteriaScores    marking.CriteriaScores      `json:"criteria_scores"`
	FullReportMD      string                      `gorm:"type:text" json:"full_report_md"`
	Completeness      string                      `gorm:"size:16;not null;default:clean" json:"completeness"`
	DroppedFields     int                         `gorm:"not null;default:0" json:"dropped_fields"`
	Model             string                      `gorm:"size:128" json:"model"`
	CreatedAt         time.Time                   `json:"created_at"`
	DeletedAt         gorm.DeletedAt              `gorm:"index" json:"-"`
	Submission        *Submission                 `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// BeforeCreate assigns an identifier when none is set.
func (a *AssessmentResult) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
