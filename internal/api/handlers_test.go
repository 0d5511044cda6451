package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/im-zhong/eduagent/agent"
	"github.com/im-zhong/eduagent/internal/auth"
	"github.com/im-zhong/eduagent/internal/cache"
	"github.com/im-zhong/eduagent/internal/store"
	"github.com/im-zhong/eduagent/pkg/types"
	"github.com/im-zhong/eduagent/rag"
)

// newTestHandler wires real agents and strategies over the in-memory
// gateway, mirroring the production composition in cmd/server.
func newTestHandler(t *testing.T) (*Handler, *fakeGateway, *http.ServeMux) {
	t.Helper()
	gateway := newFakeGateway()
	logger := testLogger()

	retrieval := rag.NewKeywordRetrieval(gateway)

	manager := agent.NewManager(logger)
	manager.AddAgent(agent.NewTutorAgent(retrieval, nil))
	manager.AddAgent(agent.NewAssessmentAgent(gateway))
	manager.AddAgent(agent.NewQuestionGeneratorAgent(gateway))

	tokens, err := auth.NewTokenManager("test-secret", time.Hour)
	require.NoError(t, err)

	h := NewHandler(Deps{
		Gateway:    gateway,
		Manager:    manager,
		Extraction: rag.NewRuleBasedExtraction(),
		Retrieval:  retrieval,
		Tokens:     tokens,
		Analytics:  cache.NewAnalyticsCache(time.Minute),
		Logger:     logger,
	})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h, gateway, mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func seedKnowledgePoint(g *fakeGateway) types.KnowledgePoint {
	kp := types.KnowledgePoint{
		ID:              uuid.New(),
		TextbookID:      uuid.New(),
		Name:            "Photosynthesis",
		Description:     "Light energy becomes chemical energy.",
		Subject:         types.SubjectBiology,
		ImportanceScore: 0.9,
		CreatedAt:       time.Now().UTC(),
	}
	g.points[kp.ID] = kp
	g.mistakes[kp.ID] = []types.CommonMistake{
		{ID: uuid.New(), KnowledgePointID: kp.ID, PatternName: "energy direction", Description: "Chemical energy becomes light energy.", Frequency: 0.6},
		{ID: uuid.New(), KnowledgePointID: kp.ID, PatternName: "respiration mixup", Description: "Glucose is broken down to release energy.", Frequency: 0.3},
	}
	return kp
}

func TestUploadTextbook_RunsFullPipeline(t *testing.T) {
	_, gateway, mux := newTestHandler(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/textbooks", map[string]any{
		"title":   "Introduction to Biology",
		"subject": "biology",
		"sections": []map[string]any{
			{
				"title":   "Photosynthesis",
				"content": "Photosynthesis is the process by which plants convert light energy into chemical energy. This is a key concept. Students often confuse it with respiration.",
				"chapter": "Chapter 1",
			},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	extraction := body["extraction"].(map[string]any)
	assert.Equal(t, "rule_based", extraction["strategy"])
	assert.GreaterOrEqual(t, extraction["knowledge_points"].(float64), 1.0)

	textbook := body["textbook"].(map[string]any)
	textbookID, err := uuid.Parse(textbook["id"].(string))
	require.NoError(t, err)
	assert.Equal(t, string(types.ExtractionCompleted), textbook["extraction_status"])

	// Persisted as a unit.
	points, err := gateway.ListKnowledgePoints(t.Context(), &textbookID, nil)
	require.NoError(t, err)
	require.NotEmpty(t, points)
	assert.NotEmpty(t, gateway.targets[points[0].ID])
}

func TestUploadTextbook_Validation(t *testing.T) {
	_, _, mux := newTestHandler(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/textbooks", map[string]any{"title": "No sections"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody(t, rec)
	detail := body["error"].(map[string]any)
	assert.Equal(t, "invalid_request_error", detail["type"])
	assert.Contains(t, detail["message"], "sections")
}

func TestGetExtractionStatus(t *testing.T) {
	_, gateway, mux := newTestHandler(t)
	kp := seedKnowledgePoint(gateway)
	gateway.textbooks[kp.TextbookID] = &types.Textbook{
		ID:               kp.TextbookID,
		Title:            "Biology",
		ExtractionStatus: types.ExtractionCompleted,
	}

	rec := doJSON(t, mux, http.MethodGet, "/api/v1/textbooks/"+kp.TextbookID.String()+"/extraction", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decodeBody(t, rec)["status"])

	rec = doJSON(t, mux, http.MethodGet, "/api/v1/textbooks/"+uuid.NewString()+"/extraction", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetKnowledgeGraph(t *testing.T) {
	_, gateway, mux := newTestHandler(t)
	kp := seedKnowledgePoint(gateway)
	gateway.textbooks[kp.TextbookID] = &types.Textbook{ID: kp.TextbookID, Title: "Biology"}

	rec := doJSON(t, mux, http.MethodGet, "/api/v1/textbooks/"+kp.TextbookID.String()+"/knowledge", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	nodes := body["knowledge_points"].([]any)
	require.Len(t, nodes, 1)
	node := nodes[0].(map[string]any)
	assert.Len(t, node["common_mistakes"].([]any), 2)
}

func TestSearchKnowledge(t *testing.T) {
	_, gateway, mux := newTestHandler(t)
	seedKnowledgePoint(gateway)

	rec := doJSON(t, mux, http.MethodGet, "/api/v1/knowledge/search?q=photosynthesis", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "keyword", body["strategy"])
	assert.NotEmpty(t, body["items"])

	rec = doJSON(t, mux, http.MethodGet, "/api/v1/knowledge/search", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateQuestions_PersistsResults(t *testing.T) {
	_, gateway, mux := newTestHandler(t)
	kp := seedKnowledgePoint(gateway)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/questions/generate", map[string]any{
		"knowledge_point_id": kp.ID.String(),
		"count":              2,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, 2.0, body["persisted"])
	assert.Len(t, gateway.questions, 2)
}

func TestGenerateQuestions_UnknownKnowledgePoint(t *testing.T) {
	_, _, mux := newTestHandler(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/questions/generate", map[string]any{
		"knowledge_point_id": uuid.NewString(),
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// The manager's envelope carries recovery guidance.
	body := decodeBody(t, rec)
	assert.Contains(t, body, "suggestions")
	assert.Contains(t, body, "other_agents")
}

func TestAdjustDifficulty(t *testing.T) {
	_, _, mux := newTestHandler(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/questions/difficulty", map[string]any{
		"difficulty": "easy",
		"direction":  "up",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "medium", decodeBody(t, rec)["difficulty"])
}

func TestEvaluateAnswer_RecordsSubmission(t *testing.T) {
	_, gateway, mux := newTestHandler(t)

	questionID := uuid.New()
	sessionID := uuid.New()
	gateway.questions[questionID] = &types.Question{
		ID:            questionID,
		QuestionText:  "What is osmosis?",
		QuestionType:  types.QuestionShortAnswer,
		CorrectAnswer: "Water moves across a membrane.",
	}
	gateway.sessions[sessionID] = &types.PracticeSession{ID: sessionID}

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/assessment/evaluate", map[string]any{
		"question_id": questionID.String(),
		"answer":      "water moves across a membrane.",
		"student_id":  uuid.NewString(),
		"session_id":  sessionID.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["is_correct"])
	assert.Contains(t, body, "submission_id")

	subs := gateway.submissions[sessionID]
	require.Len(t, subs, 1)
	require.NotNil(t, subs[0].IsCorrect)
	assert.True(t, *subs[0].IsCorrect)
	assert.Equal(t, 1.0, subs[0].Score)
}

func TestRegisterLoginProfileFlow(t *testing.T) {
	_, _, mux := newTestHandler(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/users/register", map[string]any{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "s3cret",
		"role":     "student",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Wrong password is rejected.
	rec = doJSON(t, mux, http.MethodPost, "/api/v1/users/login", map[string]any{
		"username": "alice",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/v1/users/login", map[string]any{
		"username": "alice",
		"password": "s3cret",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	token := decodeBody(t, rec)["token"].(string)
	require.NotEmpty(t, token)

	// Profile requires the bearer token.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	recNoAuth := httptest.NewRecorder()
	mux.ServeHTTP(recNoAuth, req)
	assert.Equal(t, http.StatusUnauthorized, recNoAuth.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	recAuth := httptest.NewRecorder()
	mux.ServeHTTP(recAuth, req)
	require.Equal(t, http.StatusOK, recAuth.Code)
	var profile map[string]any
	require.NoError(t, json.Unmarshal(recAuth.Body.Bytes(), &profile))
	assert.Equal(t, "alice", profile["username"])
}

func TestPracticeSessionFlow(t *testing.T) {
	_, gateway, mux := newTestHandler(t)

	questionID := uuid.New()
	gateway.questions[questionID] = &types.Question{
		ID:            questionID,
		QuestionType:  types.QuestionShortAnswer,
		CorrectAnswer: "42",
	}

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/exercises", map[string]any{
		"title":              "Practice Set 1",
		"question_ids":       []string{questionID.String()},
		"time_limit_minutes": 30,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	exerciseID := decodeBody(t, rec)["id"].(string)

	studentID := uuid.NewString()
	rec = doJSON(t, mux, http.MethodPost, "/api/v1/sessions", map[string]any{
		"student_id":  studentID,
		"exercise_id": exerciseID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	session := body["session"].(map[string]any)
	sessionID := session["id"].(string)
	assert.Equal(t, 30.0, session["time_limit_minutes"])

	// One correct answer through the grading path.
	rec = doJSON(t, mux, http.MethodPost, "/api/v1/assessment/evaluate", map[string]any{
		"question_id": questionID.String(),
		"answer":      "42",
		"student_id":  studentID,
		"session_id":  sessionID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/v1/sessions/"+sessionID+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	completion := decodeBody(t, rec)
	assert.Equal(t, 1.0, completion["accuracy"])
	assert.Equal(t, 1.0, completion["total_score"])

	rec = doJSON(t, mux, http.MethodGet, "/api/v1/sessions/"+sessionID+"/answers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["answers"].([]any), 1)
}

func TestStudentPerformance_CachesAndSnapshots(t *testing.T) {
	_, gateway, mux := newTestHandler(t)

	studentID := uuid.New()
	gateway.performance[studentID] = &store.StudentPerformance{
		StudentID:       studentID,
		SessionCount:    4,
		AverageScore:    7.5,
		AverageAccuracy: 0.8,
	}

	rec := doJSON(t, mux, http.MethodGet, "/api/v1/analytics/students/"+studentID.String()+"/performance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.8, decodeBody(t, rec)["average_accuracy"])
	require.Len(t, gateway.snapshots, 1)
	assert.Equal(t, "overall", gateway.snapshots[0].SnapshotType)

	// Second read is served from cache: no extra snapshot.
	rec = doJSON(t, mux, http.MethodGet, "/api/v1/analytics/students/"+studentID.String()+"/performance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, gateway.snapshots, 1)

	rec = doJSON(t, mux, http.MethodGet, "/api/v1/analytics/students/"+studentID.String()+"/snapshot", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStudentMistakes(t *testing.T) {
	_, gateway, mux := newTestHandler(t)

	studentID := uuid.New()
	gateway.mistakeFreqs[studentID] = []store.MistakeCount{
		{MistakeID: uuid.New(), PatternName: "sign error", Count: 3},
	}

	rec := doJSON(t, mux, http.MethodGet, "/api/v1/analytics/students/"+studentID.String()+"/mistakes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mistakes := decodeBody(t, rec)["mistakes"].([]any)
	require.Len(t, mistakes, 1)
	assert.Equal(t, "sign error", mistakes[0].(map[string]any)["pattern_name"])
}

func TestAgentEndpoints(t *testing.T) {
	_, gateway, mux := newTestHandler(t)
	seedKnowledgePoint(gateway)

	rec := doJSON(t, mux, http.MethodGet, "/api/v1/agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["agents"].([]any), 3)

	rec = doJSON(t, mux, http.MethodPost, "/api/v1/agents/requests", map[string]any{
		"type":   "tutoring",
		"action": "provide_explanation",
		"payload": map[string]any{
			"topic": "photosynthesis",
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, decodeBody(t, rec)["explanation"], "Photosynthesis")

	rec = doJSON(t, mux, http.MethodGet, "/api/v1/agents/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := RateLimit(60, 2)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Contains(t, codes[2:], http.StatusTooManyRequests)
}
