package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-writing-api/internal/models"
)

// ErrAssessmentExists is returned when a submission already has a result.
var ErrAssessmentExists = errors.New("assessment already exists for submission")

// AssessmentResultRepository stores marking results.
type AssessmentResultRepository interface {
	// Create inserts result unless the submission already has a non-deleted
	// result, in which case it returns ErrAssessmentExists.
	Create(ctx context.Context, result *models.AssessmentResult) error
	GetByID(ctx context.Context, id uuid.UUID) (models.AssessmentResult, error)
	GetBySubmissionID(ctx context.Context, submissionID uuid.UUID) (models.AssessmentResult, error)
	// Exists reports whether a non-deleted result with id is stored.
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type assessmentResultRepository struct {
	db *gorm.DB
}

// NewAssessmentResultRepository instantiates the repository.
func NewAssessmentResultRepository(db *gorm.DB) AssessmentResultRepository {
	return &assessmentResultRepository{db: db}
}

func (r *assessmentResultRepository) Create(ctx context.Context, result *models.AssessmentResult) error {
	tx := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(result)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrDuplicatedKey) {
			return ErrAssessmentExists
		}
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrAssessmentExists
	}

	return nil
}

func (r *assessmentResultRepository) GetByID(ctx context.Context, id uuid.UUID) (models.AssessmentResult, error) {
	var result models.AssessmentResult
	if err := r.db.WithContext(ctx).First(&result, "id = ?", id).Error; err != nil {
		return models.AssessmentResult{}, err
	}

	return result, nil
}

func (r *assessmentResultRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.AssessmentResult{}).
		Where("id = ?", id).
		Limit(1).
		Count(&count).Error; err != nil {
		return false, err
	}

	return count > 0, nil
}

func (r *assessmentResultRepository) GetBySubmissionID(ctx context.Context, submissionID uuid.UUID) (models.AssessmentResult, error) {
	var result models.AssessmentResult
	if err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("generated_at ASC").
		First(&result).Error; err != nil {
		return models.AssessmentResult{}, err
	}

	return result, nil
}
