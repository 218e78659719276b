package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-writing-api/internal/config"
	"github.com/noah-isme/gema-writing-api/internal/dto"
	"github.com/noah-isme/gema-writing-api/internal/handler"
	"github.com/noah-isme/gema-writing-api/internal/marking"
	"github.com/noah-isme/gema-writing-api/internal/router"
	"github.com/noah-isme/gema-writing-api/internal/service"
	"github.com/noah-isme/gema-writing-api/pkg/ai"
)

type stubMarkingService struct {
	mu       sync.Mutex
	graded   []uuid.UUID
	gradeErr error
	already  bool
	result   dto.AssessmentResultResponse
	fetchErr error
}

func (s *stubMarkingService) Grade(_ context.Context, submissionID uuid.UUID) (dto.GradeSubmissionResponse, error) {
	s.mu.Lock()
	s.graded = append(s.graded, submissionID)
	s.mu.Unlock()
	if s.gradeErr != nil {
		return dto.GradeSubmissionResponse{}, s.gradeErr
	}
	return dto.GradeSubmissionResponse{
		AssessmentID:  s.result.ID,
		SubmissionID:  submissionID,
		TotalScore:    s.result.TotalScore,
		MaxScore:      s.result.MaxScore,
		Summary:       dto.GradeSummary{Strengths: []string{"Vivid"}, Weaknesses: []string{}},
		Completeness:  "clean",
		AlreadyGraded: s.already,
	}, nil
}

func (s *stubMarkingService) GetResult(_ context.Context, assessmentID uuid.UUID) (dto.AssessmentResultResponse, error) {
	if s.fetchErr != nil {
		return dto.AssessmentResultResponse{}, s.fetchErr
	}
	if assessmentID != s.result.ID {
		return dto.AssessmentResultResponse{}, service.ErrAssessmentNotFound
	}
	return s.result, nil
}

func (s *stubMarkingService) GetResultBySubmission(_ context.Context, submissionID uuid.UUID) (dto.AssessmentResultResponse, error) {
	if submissionID != s.result.SubmissionID {
		return dto.AssessmentResultResponse{}, service.ErrAssessmentNotFound
	}
	return s.result, nil
}

func sampleResult() dto.AssessmentResultResponse {
	criteria := marking.CriteriaScores{}
	criteria.Set("audience", marking.CriterionScore{Score: 4, MaxScore: 6, Feedback: "Engaging opening."})
	criteria.Set("spelling", marking.CriterionScore{Score: 3, MaxScore: 6, Feedback: "Several errors.", Evidence: []string{"becuase"}})

	return dto.AssessmentResultResponse{
		ID:                uuid.New(),
		SubmissionID:      uuid.New(),
		Genre:             "NARRATIVE",
		TotalScore:        7,
		MaxScore:          47,
		GeneratedAt:       time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		OverallStrengths:  []string{"Vivid"},
		OverallWeaknesses: []string{},
		CriteriaScores:    criteria,
		FullReportMD:      "# NAPLAN Narrative Assessment Report",
		Completeness:      "clean",
	}
}

type markingEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Detail  string          `json:"detail"`
	Data    json.RawMessage `json:"data"`
}

func setupMarkingApp(t *testing.T, stub *stubMarkingService, role string, rateLimit int) *fiber.App {
	t.Helper()

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test", GradeRateLimit: rateLimit}, router.Dependencies{
		MarkingHandler: handler.NewMarkingHandler(stub, validate, logger),
		JWTMiddleware: func(c *fiber.Ctx) error {
			c.Locals("user_id", "7c9e6679-7425-40de-944b-e07fc1f90ae7")
			c.Locals("user_role", role)
			return c.Next()
		},
	})
	return app
}

func doMarkingRequest(t *testing.T, app *fiber.App, method, path string) (int, markingEnvelope) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, path, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload markingEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp.StatusCode, payload
}

func TestMarkingHandlerGradeCreatesResult(t *testing.T) {
	stub := &stubMarkingService{result: sampleResult()}
	app := setupMarkingApp(t, stub, "teacher", 10)

	submissionID := uuid.New()
	status, payload := doMarkingRequest(t, app, http.MethodPost, "/api/v2/marking/grade/"+submissionID.String())
	require.Equal(t, http.StatusCreated, status)
	require.True(t, payload.Success)

	var body dto.GradeSubmissionResponse
	require.NoError(t, json.Unmarshal(payload.Data, &body))
	require.Equal(t, submissionID, body.SubmissionID)
	require.Equal(t, stub.result.ID, body.AssessmentID)
	require.False(t, body.AlreadyGraded)
	require.Equal(t, []uuid.UUID{submissionID}, stub.graded)
}

func TestMarkingHandlerGradeAlreadyGradedReturnsOK(t *testing.T) {
	stub := &stubMarkingService{result: sampleResult(), already: true}
	app := setupMarkingApp(t, stub, "admin", 10)

	status, payload := doMarkingRequest(t, app, http.MethodPost, "/api/v2/marking/grade/"+uuid.NewString())
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "submission already graded", payload.Message)
}

func TestMarkingHandlerRejectsInvalidIdentifiers(t *testing.T) {
	stub := &stubMarkingService{result: sampleResult()}
	app := setupMarkingApp(t, stub, "teacher", 10)

	status, _ := doMarkingRequest(t, app, http.MethodPost, "/api/v2/marking/grade/42")
	require.Equal(t, http.StatusBadRequest, status)
	status, _ = doMarkingRequest(t, app, http.MethodGet, "/api/v2/marking/results/not-a-uuid")
	require.Equal(t, http.StatusBadRequest, status)
	require.Empty(t, stub.graded)
}

func TestMarkingHandlerRequiresStaffRole(t *testing.T) {
	stub := &stubMarkingService{result: sampleResult()}
	app := setupMarkingApp(t, stub, "student", 10)

	status, payload := doMarkingRequest(t, app, http.MethodPost, "/api/v2/marking/grade/"+uuid.NewString())
	require.Equal(t, http.StatusForbidden, status)
	require.False(t, payload.Success)
	require.Empty(t, stub.graded)
}

func TestMarkingHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
		detail  string
	}{
		{"not found", service.ErrSubmissionNotFound, http.StatusNotFound, "submission not found", ""},
		{"project missing", service.ErrProjectNotFound, http.StatusNotFound, "project not found", ""},
		{"draft", service.ErrSubmissionNotSubmitted, http.StatusBadRequest, "submission must be submitted before grading", ""},
		{
			"unavailable",
			&service.GenerationUnavailableError{Provider: ai.ProviderOllama, Model: "mistral"},
			http.StatusServiceUnavailable,
			"generation service unavailable",
			"start the generation service (ollama serve) and pull the model (ollama pull mistral)",
		},
		{
			"generation failed",
			fmt.Errorf("%w: %w", service.ErrGenerationFailed, &ai.ServiceError{Provider: ai.ProviderOllama, Op: "generate", StatusCode: 500}),
			http.StatusBadGateway,
			"generation request failed",
			"",
		},
		{"extraction", fmt.Errorf("parse model output: %w", service.ErrExtraction), http.StatusInternalServerError, "model returned no usable JSON", ""},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError, "internal server error", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubMarkingService{result: sampleResult(), gradeErr: tc.err}
			app := setupMarkingApp(t, stub, "teacher", 10)

			status, payload := doMarkingRequest(t, app, http.MethodPost, "/api/v2/marking/grade/"+uuid.NewString())
			require.Equal(t, tc.status, status)
			require.False(t, payload.Success)
			require.Equal(t, tc.message, payload.Message)
			require.Equal(t, tc.detail, payload.Detail)
		})
	}
}

func TestMarkingHandlerResultLookups(t *testing.T) {
	stub := &stubMarkingService{result: sampleResult()}
	app := setupMarkingApp(t, stub, "teacher", 10)

	status, payload := doMarkingRequest(t, app, http.MethodGet, "/api/v2/marking/results/"+stub.result.ID.String())
	require.Equal(t, http.StatusOK, status)
	var byID dto.AssessmentResultResponse
	require.NoError(t, json.Unmarshal(payload.Data, &byID))
	require.Equal(t, stub.result.ID, byID.ID)
	require.Equal(t, []string{"audience", "spelling"}, byID.CriteriaScores.Keys())

	status, payload = doMarkingRequest(t, app, http.MethodGet, "/api/v2/marking/submissions/"+stub.result.SubmissionID.String()+"/result")
	require.Equal(t, http.StatusOK, status)
	var bySubmission dto.AssessmentResultResponse
	require.NoError(t, json.Unmarshal(payload.Data, &bySubmission))
	require.Equal(t, stub.result.ID, bySubmission.ID)

	status, _ = doMarkingRequest(t, app, http.MethodGet, "/api/v2/marking/results/"+uuid.NewString())
	require.Equal(t, http.StatusNotFound, status)
}

func TestMarkingHandlerRateLimitsGrading(t *testing.T) {
	stub := &stubMarkingService{result: sampleResult(), already: true}
	app := setupMarkingApp(t, stub, "teacher", 2)

	path := "/api/v2/marking/grade/" + uuid.NewString()
	for i := 0; i < 2; i++ {
		status, _ := doMarkingRequest(t, app, http.MethodPost, path)
		require.Equal(t, http.StatusOK, status)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, path, nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// lookups are not limited
	status, _ := doMarkingRequest(t, app, http.MethodGet, "/api/v2/marking/results/"+stub.result.ID.String())
	require.Equal(t, http.StatusOK, status)
}
