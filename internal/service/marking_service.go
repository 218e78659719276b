package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-writing-api/internal/dto"
	"github.com/noah-isme/gema-writing-api/internal/marking"
	"github.com/noah-isme/gema-writing-api/internal/models"
	"github.com/noah-isme/gema-writing-api/internal/observability"
	"github.com/noah-isme/gema-writing-api/internal/prompt"
	"github.com/noah-isme/gema-writing-api/internal/repository"
	"github.com/noah-isme/gema-writing-api/internal/rubric"
	"github.com/noah-isme/gema-writing-api/pkg/ai"
)

// MarkingService grades writing submissions and serves stored results.
type MarkingService interface {
	Grade(ctx context.Context, submissionID uuid.UUID) (dto.GradeSubmissionResponse, error)
	GetResult(ctx context.Context, assessmentID uuid.UUID) (dto.AssessmentResultResponse, error)
	GetResultBySubmission(ctx context.Context, submissionID uuid.UUID) (dto.AssessmentResultResponse, error)
}

var (
	// ErrSubmissionNotFound indicates the submission cannot be located.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrSubmissionNotSubmitted indicates the submission is still a draft.
	ErrSubmissionNotSubmitted = errors.New("submission must be submitted to grade")
	// ErrProjectNotFound indicates the submission's project cannot be located.
	ErrProjectNotFound = errors.New("project not found")
	// ErrAssessmentNotFound indicates no stored result matches the request.
	ErrAssessmentNotFound = errors.New("assessment not found")
	// ErrGenerationUnavailable indicates the generation service is down or lacks the model.
	ErrGenerationUnavailable = errors.New("generation service unavailable")
	// ErrGenerationFailed indicates the generation call itself failed.
	ErrGenerationFailed = errors.New("generation request failed")
	// ErrExtraction indicates the model answered without usable JSON.
	ErrExtraction = marking.ErrExtraction
)

// GenerationUnavailableError reports a failed health check together with a
// hint on how to bring the service up.
type GenerationUnavailableError struct {
	Provider string
	Model    string
}

func (e *GenerationUnavailableError) Error() string {
	return fmt.Sprintf("%s: %s model %q not reachable", ErrGenerationUnavailable, e.Provider, e.Model)
}

func (e *GenerationUnavailableError) Unwrap() error {
	return ErrGenerationUnavailable
}

// Hint describes how to provision the generation service.
func (e *GenerationUnavailableError) Hint() string {
	if e.Provider == ai.ProviderOllama {
		return fmt.Sprintf("start the generation service (ollama serve) and pull the model (ollama pull %s)", e.Model)
	}
	return fmt.Sprintf("check the %s API key and that model %s is available to it", e.Provider, e.Model)
}

// MarkingConfig tunes the marking service.
type MarkingConfig struct {
	CacheTTL time.Duration
	Now      func() time.Time
}

type markingService struct {
	submissions repository.SubmissionRepository
	projects    repository.ProjectRepository
	results     repository.AssessmentResultRepository
	rubrics     *rubric.Provider
	prompts     *prompt.Builder
	generator   ai.Generator
	cache       *redis.Client
	cacheTTL    time.Duration
	now         func() time.Time
	inflight    singleflight.Group
	tracer      trace.Tracer
	logger      zerolog.Logger
}

// NewMarkingService wires the marking pipeline. cache may be nil.
func NewMarkingService(
	submissions repository.SubmissionRepository,
	projects repository.ProjectRepository,
	results repository.AssessmentResultRepository,
	rubrics *rubric.Provider,
	prompts *prompt.Builder,
	generator ai.Generator,
	cache *redis.Client,
	cfg MarkingConfig,
	logger zerolog.Logger,
) MarkingService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &markingService{
		submissions: submissions,
		projects:    projects,
		results:     results,
		rubrics:     rubrics,
		prompts:     prompts,
		generator:   generator,
		cache:       cache,
		cacheTTL:    cfg.CacheTTL,
		now:         cfg.Now,
		tracer:      otel.Tracer("github.com/noah-isme/gema-writing-api/internal/service/marking"),
		logger:      logger.With().Str("component", "marking_service").Logger(),
	}
}

// Grade marks a submission once. Concurrent calls for the same submission in
// this process share one attempt; across processes the unique index on
// assessment_results decides and the loser returns the stored result.
func (s *markingService) Grade(ctx context.Context, submissionID uuid.UUID) (dto.GradeSubmissionResponse, error) {
	value, err, _ := s.inflight.Do(submissionID.String(), func() (interface{}, error) {
		return s.grade(ctx, submissionID)
	})
	if err != nil {
		return dto.GradeSubmissionResponse{}, err
	}

	return value.(dto.GradeSubmissionResponse), nil
}

func (s *markingService) grade(parent context.Context, submissionID uuid.UUID) (dto.GradeSubmissionResponse, error) {
	ctx, span := s.tracer.Start(parent, "marking.grade", trace.WithAttributes(
		attribute.String("submission_id", submissionID.String()),
	))
	defer span.End()
	if correlationID := observability.CorrelationID(ctx); correlationID != "" {
		span.SetAttributes(attribute.String("correlation_id", correlationID))
	}

	logger := observability.RequestLogger(ctx, s.logger).With().Str("submission_id", submissionID.String()).Logger()

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GradeSubmissionResponse{}, s.fail(span, "", "not_found", ErrSubmissionNotFound)
		}
		return dto.GradeSubmissionResponse{}, s.fail(span, "", "error", fmt.Errorf("load submission: %w", err))
	}

	existing, err := s.results.GetBySubmissionID(ctx, submissionID)
	switch {
	case err == nil:
		logger.Info().Str("assessment_id", existing.ID.String()).Msg("submission already graded")
		observability.GradingOutcomes().WithLabelValues(existing.Genre, "already_graded").Inc()
		return dto.NewGradeSubmissionResponse(existing, true), nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return dto.GradeSubmissionResponse{}, s.fail(span, "", "error", fmt.Errorf("load existing assessment: %w", err))
	}

	if !submission.IsSubmitted() {
		return dto.GradeSubmissionResponse{}, s.fail(span, "", "rejected", ErrSubmissionNotSubmitted)
	}

	project, err := s.projects.GetByID(ctx, submission.ProjectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GradeSubmissionResponse{}, s.fail(span, "", "not_found", ErrProjectNotFound)
		}
		return dto.GradeSubmissionResponse{}, s.fail(span, "", "error", fmt.Errorf("load project: %w", err))
	}

	genre, fellBack := s.rubrics.Resolve(project.Genre)
	if fellBack {
		logger.Warn().
			Str("project_id", project.ID.String()).
			Str("genre_tag", project.Genre).
			Str("genre", genre).
			Msg("unrecognised project genre, using default rubric")
		observability.RecordGenreFallback(project.Genre)
	}
	span.SetAttributes(attribute.String("genre", genre))

	r, err := s.rubrics.Load(genre)
	if err != nil {
		return dto.GradeSubmissionResponse{}, s.fail(span, genre, "error", fmt.Errorf("load rubric: %w", err))
	}
	for _, criterion := range r.Criteria {
		if criterion.Missing {
			logger.Warn().Str("genre", genre).Str("criterion", criterion.Key).Msg("rubric reference text missing")
		}
	}

	if !s.generator.CheckHealth(ctx) {
		unavailable := &GenerationUnavailableError{Provider: s.generator.Provider(), Model: s.generator.Model()}
		logger.Warn().Str("provider", unavailable.Provider).Str("model", unavailable.Model).Msg("generation service unavailable")
		return dto.GradeSubmissionResponse{}, s.fail(span, genre, "unavailable", unavailable)
	}

	promptText, err := s.prompts.Build(r, submission.ContentRaw)
	if err != nil {
		return dto.GradeSubmissionResponse{}, s.fail(span, genre, "error", fmt.Errorf("build prompt: %w", err))
	}

	start := time.Now()
	raw, err := s.generator.Generate(ctx, promptText, prompt.SystemInstruction(r.Label))
	observability.GradingDuration().WithLabelValues(genre).Observe(time.Since(start).Seconds())
	if err != nil {
		return dto.GradeSubmissionResponse{}, s.fail(span, genre, "generation_failed", fmt.Errorf("%w: %w", ErrGenerationFailed, err))
	}

	doc, err := marking.Extract(raw)
	if err != nil {
		logger.Warn().Int("response_length", len(raw)).Msg("model response contained no JSON")
		return dto.GradeSubmissionResponse{}, s.fail(span, genre, "extraction_failed", fmt.Errorf("extract response: %w", err))
	}

	normalized, err := marking.Normalize(doc, r.MaxTotal())
	if err != nil {
		return dto.GradeSubmissionResponse{}, s.fail(span, genre, "extraction_failed", fmt.Errorf("normalize response: %w", err))
	}
	if normalized.Status() == marking.StatusPartial {
		logger.Warn().
			Int("dropped_fields", normalized.Dropped).
			Str("strategy", string(doc.Strategy)).
			Msg("model response was only partially usable")
	}

	record := normalized.Record
	result := models.AssessmentResult{
		SubmissionID:      submission.ID,
		Genre:             r.Genre,
		TotalScore:        record.TotalScore,
		MaxScore:          r.MaxTotal(),
		GeneratedAt:       s.now().UTC(),
		OverallStrengths:  record.OverallStrengths,
		OverallWeaknesses: record.OverallWeaknesses,
		CriteriaScores:    record.Criteria,
		FullReportMD:      marking.Render(record, r.Label, r.MaxTotal()),
		Completeness:      string(normalized.Status()),
		DroppedFields:     normalized.Dropped,
		Model:             s.generator.Model(),
	}

	if err := s.results.Create(ctx, &result); err != nil {
		if !errors.Is(err, repository.ErrAssessmentExists) {
			return dto.GradeSubmissionResponse{}, s.fail(span, genre, "error", fmt.Errorf("store assessment: %w", err))
		}

		stored, fetchErr := s.results.GetBySubmissionID(ctx, submissionID)
		if fetchErr != nil {
			return dto.GradeSubmissionResponse{}, s.fail(span, genre, "error", fmt.Errorf("load concurrent assessment: %w", fetchErr))
		}
		logger.Info().Str("assessment_id", stored.ID.String()).Msg("submission graded concurrently, returning stored result")
		observability.GradingOutcomes().WithLabelValues(genre, "already_graded").Inc()
		return dto.NewGradeSubmissionResponse(stored, true), nil
	}

	observability.GradingOutcomes().WithLabelValues(genre, "graded_"+result.Completeness).Inc()
	logger.Info().
		Str("assessment_id", result.ID.String()).
		Str("genre", genre).
		Int("total_score", result.TotalScore).
		Int("max_score", result.MaxScore).
		Str("completeness", result.Completeness).
		Msg("submission graded")

	return dto.NewGradeSubmissionResponse(result, false), nil
}

func (s *markingService) fail(span trace.Span, genre, outcome string, err error) error {
	observability.GradingOutcomes().WithLabelValues(genre, outcome).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// GetResult returns a stored result. Results never change, so the rendered
// payload is cached by id when a cache is configured; a cache hit is only
// served while the row still exists, since results can be soft deleted or
// removed with their submission.
func (s *markingService) GetResult(ctx context.Context, assessmentID uuid.UUID) (dto.AssessmentResultResponse, error) {
	cacheKey := fmt.Sprintf("marking:result:%s", assessmentID)
	logger := observability.RequestLogger(ctx, s.logger).With().Str("assessment_id", assessmentID.String()).Logger()

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.AssessmentResultResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				exists, existsErr := s.results.Exists(ctx, assessmentID)
				switch {
				case existsErr != nil:
					logger.Warn().Err(existsErr).Msg("failed to confirm cached assessment")
				case !exists:
					if delErr := s.cache.Del(ctx, cacheKey).Err(); delErr != nil {
						logger.Warn().Err(delErr).Msg("failed to evict stale assessment cache")
					}
					return dto.AssessmentResultResponse{}, ErrAssessmentNotFound
				default:
					logger.Debug().Msg("assessment cache hit")
					return response, nil
				}
			}
		} else if !errors.Is(err, redis.Nil) {
			logger.Warn().Err(err).Msg("failed to read assessment cache")
		}
	}

	result, err := s.results.GetByID(ctx, assessmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssessmentResultResponse{}, ErrAssessmentNotFound
		}
		return dto.AssessmentResultResponse{}, fmt.Errorf("load assessment: %w", err)
	}

	response := dto.NewAssessmentResultResponse(result)

	if s.cache != nil {
		payload, err := json.Marshal(response)
		if err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				logger.Warn().Err(err).Msg("failed to store assessment cache")
			}
		}
	}

	return response, nil
}

// GetResultBySubmission returns the stored result for a submission.
func (s *markingService) GetResultBySubmission(ctx context.Context, submissionID uuid.UUID) (dto.AssessmentResultResponse, error) {
	result, err := s.results.GetBySubmissionID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssessmentResultResponse{}, ErrAssessmentNotFound
		}
		return dto.AssessmentResultResponse{}, fmt.Errorf("load assessment: %w", err)
	}

	return dto.NewAssessmentResultResponse(result), nil
}
