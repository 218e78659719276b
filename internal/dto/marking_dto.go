package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/gema-writing-api/internal/marking"
	"github.com/noah-isme/gema-writing-api/internal/models"
)

// summaryPreviewSize is the number of strengths and weaknesses echoed by a grade call.
const summaryPreviewSize = 2

// MarkingIDParam validates identifiers taken from the route.
type MarkingIDParam struct {
	ID string `validate:"required,uuid"`
}

// GradeSummary previews the first strengths and weaknesses.
type GradeSummary struct {
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
}

// GradeSubmissionResponse is returned by the grade endpoint.
type GradeSubmissionResponse struct {
	AssessmentID  uuid.UUID    `json:"assessment_id"`
	SubmissionID  uuid.UUID    `json:"submission_id"`
	TotalScore    int          `json:"total_score"`
	MaxScore      int          `json:"max_score"`
	Summary       GradeSummary `json:"summary"`
	Completeness  string       `json:"completeness"`
	AlreadyGraded bool         `json:"already_graded"`
}

// AssessmentResultResponse is the full stored result including the report.
type AssessmentResultResponse struct {
	ID                uuid.UUID              `json:"id"`
	SubmissionID      uuid.UUID              `json:"submission_id"`
	Genre             string                 `json:"genre"`
	TotalScore        int                    `json:"total_score"`
	MaxScore          int                    `json:"max_score"`
	GeneratedAt       time.Time              `json:"generated_at"`
	OverallStrengths  []string               `json:"overall_strengths"`
	OverallWeaknesses []string               `json:"overall_weaknesses"`
	CriteriaScores    marking.CriteriaScores `json:"criteria_scores"`
	FullReportMD      string                 `json:"full_report_md"`
	Completeness      string                 `json:"completeness"`
	DroppedFields     int                    `json:"dropped_fields"`
	Model             string                 `json:"model,omitempty"`
}

// NewGradeSubmissionResponse summarises a stored result.
func NewGradeSubmissionResponse(result models.AssessmentResult, alreadyGraded bool) GradeSubmissionResponse {
	return GradeSubmissionResponse{
		AssessmentID: result.ID,
		SubmissionID: result.SubmissionID,
		TotalScore:   result.TotalScore,
		MaxScore:     result.MaxScore,
		Summary: GradeSummary{
			Strengths:  preview(result.OverallStrengths),
			Weaknesses: preview(result.OverallWeaknesses),
		},
		Completeness:  result.Completeness,
		AlreadyGraded: alreadyGraded,
	}
}

// NewAssessmentResultResponse maps a stored result to its API shape.
func NewAssessmentResultResponse(result models.AssessmentResult) AssessmentResultResponse {
	criteria := result.CriteriaScores
	if criteria == nil {
		criteria = marking.CriteriaScores{}
	}

	return AssessmentResultResponse{
		ID:                result.ID,
		SubmissionID:      result.SubmissionID,
		Genre:             result.Genre,
		TotalScore:        result.TotalScore,
		MaxScore:          result.MaxScore,
		GeneratedAt:       result.GeneratedAt,
		OverallStrengths:  nonNil(result.OverallStrengths),
		OverallWeaknesses: nonNil(result.OverallWeaknesses),
		CriteriaScores:    criteria,
		FullReportMD:      result.FullReportMD,
		Completeness:      result.Completeness,
		DroppedFields:     result.DroppedFields,
		Model:             result.Model,
	}
}

func preview(items []string) []string {
	if len(items) > summaryPreviewSize {
		items = items[:summaryPreviewSize]
	}
	return nonNil(items)
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	out := make([]string, len(items))
	copy(out, items)
	return out
}
