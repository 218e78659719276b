package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-writing-api/internal/service"
	"github.com/noah-isme/gema-writing-api/internal/utils"
)

// MarkingHandler exposes grading and result lookup endpoints.
type MarkingHandler struct {
	service   service.MarkingService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewMarkingHandler builds a marking handler instance.
func NewMarkingHandler(service service.MarkingService, validator *validator.Validate, logger zerolog.Logger) *MarkingHandler {
	return &MarkingHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "marking_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group. Extra handlers
// run in front of the grade route only.
func (h *MarkingHandler) Register(router fiber.Router, gradeMiddleware ...fiber.Handler) {
	grade := append(append([]fiber.Handler{}, gradeMiddleware...), h.grade)
	router.Post("/grade/:submissionId", grade...)
	router.Get("/results/:assessmentId", h.result)
	router.Get("/submissions/:submissionId/result", h.resultBySubmission)
}

func (h *MarkingHandler) grade(c *fiber.Ctx) error {
	submissionID, err := parseUUIDParam(c, h.validator, "submissionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid submission id")
	}

	logger := requestLogger(h.logger, c)
	logger.Info().
		Str("submission_id", submissionID.String()).
		Str("requested_by", userIDStringFromContext(c)).
		Msg("grading submission")

	result, err := h.service.Grade(c.UserContext(), submissionID)
	if err != nil {
		return h.handleError(c, err)
	}

	if result.AlreadyGraded {
		return utils.SendSuccess(c, "submission already graded", result)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission graded", result)
}

func (h *MarkingHandler) result(c *fiber.Ctx) error {
	assessmentID, err := parseUUIDParam(c, h.validator, "assessmentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid assessment id")
	}

	result, err := h.service.GetResult(c.UserContext(), assessmentID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "assessment retrieved", result)
}

func (h *MarkingHandler) resultBySubmission(c *fiber.Ctx) error {
	submissionID, err := parseUUIDParam(c, h.validator, "submissionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid submission id")
	}

	result, err := h.service.GetResultBySubmission(c.UserContext(), submissionID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "assessment retrieved", result)
}

func (h *MarkingHandler) handleError(c *fiber.Ctx, err error) error {
	var unavailable *service.GenerationUnavailableError
	switch {
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case errors.Is(err, service.ErrProjectNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "project not found")
	case errors.Is(err, service.ErrAssessmentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "assessment not found")
	case errors.Is(err, service.ErrSubmissionNotSubmitted):
		return utils.SendError(c, fiber.StatusBadRequest, "submission must be submitted before grading")
	case errors.As(err, &unavailable):
		return utils.SendErrorDetail(c, fiber.StatusServiceUnavailable, "generation service unavailable", unavailable.Hint())
	case errors.Is(err, service.ErrGenerationFailed):
		requestLogger(h.logger, c).Warn().Err(err).Msg("generation failed")
		return utils.SendError(c, fiber.StatusBadGateway, "generation request failed")
	case errors.Is(err, service.ErrExtraction):
		requestLogger(h.logger, c).Warn().Err(err).Msg("model output rejected")
		return utils.SendError(c, fiber.StatusInternalServerError, "model returned no usable JSON")
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
