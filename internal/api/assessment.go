package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/im-zhong/eduagent/agent"
	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/pkg/types"
)

// evaluateAnswerRequest submits an answer for grading. Student and session
// ids are optional; when both are present the submission is recorded.
type evaluateAnswerRequest struct {
	QuestionID       string  `json:"question_id"`
	Answer           string  `json:"answer"`
	StudentID        string  `json:"student_id,omitempty"`
	SessionID        string  `json:"session_id,omitempty"`
	TimeTakenSeconds float64 `json:"time_taken_seconds,omitempty"`
}

// EvaluateAnswer handles POST /api/v1/assessment/evaluate.
func (h *Handler) EvaluateAnswer(w http.ResponseWriter, r *http.Request) {
	h.evaluate(w, r, "evaluate_answer")
}

// ProvideFeedback handles POST /api/v1/assessment/feedback. The response
// additionally carries the stored explanation and solution steps.
func (h *Handler) ProvideFeedback(w http.ResponseWriter, r *http.Request) {
	h.evaluate(w, r, "provide_feedback")
}

func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request, action string) {
	var req evaluateAnswerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	resp, err := h.manager.HandleRequest(r.Context(), agent.Request{
		Type:   "assessment",
		Action: action,
		Payload: map[string]any{
			"question_id": req.QuestionID,
			"answer":      req.Answer,
		},
	})
	if err != nil {
		status := http.StatusInternalServerError
		if e, ok := err.(*eduerrors.Error); ok {
			status = e.HTTPStatusCode()
		}
		h.writeJSON(w, status, resp)
		return
	}

	if submission := h.recordSubmission(r, req, resp); submission != nil {
		resp["submission_id"] = submission.ID
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// recordSubmission persists a graded answer when the request identifies the
// student. Recording is best-effort and never fails the evaluation.
func (h *Handler) recordSubmission(r *http.Request, req evaluateAnswerRequest, resp map[string]any) *types.AnswerSubmission {
	if req.StudentID == "" {
		return nil
	}
	studentID, err := uuid.Parse(req.StudentID)
	if err != nil {
		return nil
	}
	questionID, err := uuid.Parse(req.QuestionID)
	if err != nil {
		return nil
	}

	submission := &types.AnswerSubmission{
		ID:               uuid.New(),
		StudentID:        studentID,
		QuestionID:       questionID,
		AnswerText:       req.Answer,
		TimeTakenSeconds: req.TimeTakenSeconds,
		SubmittedAt:      time.Now().UTC(),
	}
	if req.SessionID != "" {
		if sessionID, err := uuid.Parse(req.SessionID); err == nil {
			submission.PracticeSessionID = &sessionID
		}
	}
	if correct, ok := resp["is_correct"].(bool); ok {
		submission.IsCorrect = &correct
	}
	if score, ok := resp["score"].(float64); ok {
		submission.Score = score
	}
	if feedback, ok := resp["feedback"].(string); ok {
		submission.AIFeedback = feedback
	}
	if mistakeID, ok := resp["mistake_pattern_id"].(uuid.UUID); ok {
		submission.MistakePatternID = &mistakeID
	}

	if err := h.gateway.CreateAnswerSubmission(r.Context(), submission); err != nil {
		h.logger.Warn("answer submission not recorded", "student_id", studentID, "error", err)
		return nil
	}
	if h.analytics != nil {
		h.analytics.Invalidate(studentID)
	}
	return submission
}
