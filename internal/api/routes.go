// Route registration for all API endpoints.
package api

import (
	"net/http"
)

// RegisterRoutes registers all API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// ========================================================================
	// Textbooks and Knowledge
	// ========================================================================
	mux.HandleFunc("POST /api/v1/textbooks", h.UploadTextbook)
	mux.HandleFunc("GET /api/v1/textbooks/{id}", h.GetTextbook)
	mux.HandleFunc("GET /api/v1/textbooks/{id}/extraction", h.GetExtractionStatus)
	mux.HandleFunc("GET /api/v1/textbooks/{id}/knowledge", h.GetKnowledgeGraph)
	mux.HandleFunc("GET /api/v1/knowledge/search", h.SearchKnowledge)
	mux.HandleFunc("GET /api/v1/knowledge/{id}/questions", h.ListQuestionsForKnowledgePoint)

	// ========================================================================
	// Questions
	// ========================================================================
	mux.HandleFunc("POST /api/v1/questions/generate", h.GenerateQuestions)
	mux.HandleFunc("POST /api/v1/questions/difficulty", h.AdjustDifficulty)
	mux.HandleFunc("POST /api/v1/questions/distractors", h.GenerateDistractors)
	mux.HandleFunc("POST /api/v1/questions/batch", h.BatchGenerateQuestions)
	mux.HandleFunc("GET /api/v1/questions/{id}", h.GetQuestion)
	mux.HandleFunc("POST /api/v1/questions/{id}/review", h.ReviewQuestion)

	// ========================================================================
	// Assessment
	// ========================================================================
	mux.HandleFunc("POST /api/v1/assessment/evaluate", h.EvaluateAnswer)
	mux.HandleFunc("POST /api/v1/assessment/feedback", h.ProvideFeedback)

	// ========================================================================
	// Users
	// ========================================================================
	mux.HandleFunc("POST /api/v1/users/register", h.RegisterUser)
	mux.HandleFunc("POST /api/v1/users/login", h.Login)
	if h.tokens != nil {
		mux.Handle("GET /api/v1/users/me", h.tokens.RequireToken(http.HandlerFunc(h.Profile)))
	}

	// ========================================================================
	// Exercises and Practice Sessions
	// ========================================================================
	mux.HandleFunc("POST /api/v1/exercises", h.CreateExercise)
	mux.HandleFunc("GET /api/v1/exercises/{id}", h.GetExercise)
	mux.HandleFunc("GET /api/v1/classes/{id}/exercises", h.ListClassExercises)
	mux.HandleFunc("POST /api/v1/sessions", h.StartPracticeSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/complete", h.CompletePracticeSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}/answers", h.ListSessionAnswers)
	mux.HandleFunc("GET /api/v1/students/{id}/sessions", h.ListStudentSessions)

	// ========================================================================
	// Analytics
	// ========================================================================
	mux.HandleFunc("GET /api/v1/analytics/students/{id}/performance", h.StudentPerformance)
	mux.HandleFunc("GET /api/v1/analytics/students/{id}/mistakes", h.StudentMistakes)
	mux.HandleFunc("GET /api/v1/analytics/students/{id}/snapshot", h.StudentSnapshot)
	mux.HandleFunc("GET /api/v1/analytics/classes/{id}/performance", h.ClassPerformance)

	// ========================================================================
	// Agents and Health
	// ========================================================================
	mux.HandleFunc("GET /api/v1/agents", h.ListAgents)
	mux.HandleFunc("GET /api/v1/agents/status", h.AgentStatus)
	mux.HandleFunc("POST /api/v1/agents/requests", h.AgentRequest)
	mux.HandleFunc("GET /health/live", h.HealthCheck)
	mux.HandleFunc("GET /health/ready", h.HealthCheck)
}
