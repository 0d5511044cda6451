package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/pkg/types"
)

type createExerciseRequest struct {
	Title            string                `json:"title"`
	Description      string                `json:"description,omitempty"`
	Subject          types.SubjectArea     `json:"subject,omitempty"`
	Difficulty       types.DifficultyLevel `json:"difficulty,omitempty"`
	ClassID          string                `json:"class_id,omitempty"`
	CreatorID        string                `json:"creator_id,omitempty"`
	QuestionIDs      []string              `json:"question_ids"`
	TimeLimitMinutes int                   `json:"time_limit_minutes,omitempty"`
	IsPublished      bool                  `json:"is_published,omitempty"`
}

// CreateExercise handles POST /api/v1/exercises.
func (h *Handler) CreateExercise(w http.ResponseWriter, r *http.Request) {
	var req createExerciseRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Title == "" {
		h.writeError(w, eduerrors.NewInvalidRequestError("api", "title is required"))
		return
	}
	if len(req.QuestionIDs) == 0 {
		h.writeError(w, eduerrors.NewInvalidRequestError("api", "question_ids are required"))
		return
	}

	questionIDs := make([]uuid.UUID, len(req.QuestionIDs))
	for i, raw := range req.QuestionIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.writeError(w, eduerrors.NewInvalidRequestError("api", "question_ids must be UUIDs"))
			return
		}
		questionIDs[i] = id
	}

	exercise := &types.Exercise{
		ID:               uuid.New(),
		Title:            req.Title,
		Description:      req.Description,
		Subject:          req.Subject,
		Difficulty:       req.Difficulty,
		QuestionIDs:      questionIDs,
		TimeLimitMinutes: req.TimeLimitMinutes,
		IsPublished:      req.IsPublished,
		CreatedAt:        time.Now().UTC(),
	}
	if req.ClassID != "" {
		id, err := uuid.Parse(req.ClassID)
		if err != nil {
			h.writeError(w, eduerrors.NewInvalidRequestError("api", "class_id must be a UUID"))
			return
		}
		exercise.ClassID = &id
	}
	if req.CreatorID != "" {
		id, err := uuid.Parse(req.CreatorID)
		if err != nil {
			h.writeError(w, eduerrors.NewInvalidRequestError("api", "creator_id must be a UUID"))
			return
		}
		exercise.CreatorID = &id
	}

	if err := h.gateway.CreateExercise(r.Context(), exercise); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, exercise)
}

// GetExercise handles GET /api/v1/exercises/{id}.
func (h *Handler) GetExercise(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	exercise, err := h.gateway.GetExercise(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, exercise)
}

// ListClassExercises handles GET /api/v1/classes/{id}/exercises. Only
// published exercises are listed.
func (h *Handler) ListClassExercises(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	exercises, err := h.gateway.ListExercisesForClass(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"class_id": id, "exercises": exercises})
}

type startSessionRequest struct {
	StudentID  string `json:"student_id"`
	ExerciseID string `json:"exercise_id"`
}

// StartPracticeSession handles POST /api/v1/sessions.
func (h *Handler) StartPracticeSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	studentID, err := uuid.Parse(req.StudentID)
	if err != nil {
		h.writeError(w, eduerrors.NewInvalidRequestError("api", "student_id must be a UUID"))
		return
	}
	exerciseID, err := uuid.Parse(req.ExerciseID)
	if err != nil {
		h.writeError(w, eduerrors.NewInvalidRequestError("api", "exercise_id must be a UUID"))
		return
	}

	// The exercise sets the session's time limit.
	exercise, err := h.gateway.GetExercise(r.Context(), exerciseID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	now := time.Now().UTC()
	session := &types.PracticeSession{
		ID:               uuid.New(),
		StudentID:        studentID,
		ExerciseID:       exerciseID,
		StartTime:        now,
		TimeLimitMinutes: exercise.TimeLimitMinutes,
		CreatedAt:        now,
	}
	if err := h.gateway.CreatePracticeSession(r.Context(), session); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{
		"session":      session,
		"question_ids": exercise.QuestionIDs,
	})
}

// CompletePracticeSession handles POST /api/v1/sessions/{id}/complete.
// Score and accuracy are computed from the session's recorded submissions.
func (h *Handler) CompletePracticeSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	submissions, err := h.gateway.ListSubmissionsForSession(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var totalScore float64
	correct := 0
	for _, sub := range submissions {
		totalScore += sub.Score
		if sub.IsCorrect != nil && *sub.IsCorrect {
			correct++
		}
	}
	accuracy := 0.0
	if len(submissions) > 0 {
		accuracy = float64(correct) / float64(len(submissions))
	}

	if err := h.gateway.CompletePracticeSession(r.Context(), id, totalScore, accuracy); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"session_id":  id,
		"completed":   true,
		"total_score": totalScore,
		"accuracy":    accuracy,
		"answers":     len(submissions),
	})
}

// ListSessionAnswers handles GET /api/v1/sessions/{id}/answers.
func (h *Handler) ListSessionAnswers(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	submissions, err := h.gateway.ListSubmissionsForSession(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "answers": submissions})
}

// ListStudentSessions handles GET /api/v1/students/{id}/sessions.
func (h *Handler) ListStudentSessions(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	sessions, err := h.gateway.SessionsByStudent(r.Context(), id, 0)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"student_id": id, "sessions": sessions})
}
