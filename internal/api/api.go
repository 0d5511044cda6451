// Package api provides the HTTP surface of the eduagent platform.
// Handlers route work to the agent manager, retrieval strategies, and the
// persistence gateway, and speak a uniform JSON error envelope.
package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/im-zhong/eduagent/agent"
	"github.com/im-zhong/eduagent/internal/auth"
	"github.com/im-zhong/eduagent/internal/cache"
	"github.com/im-zhong/eduagent/internal/store"
	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/pkg/types"
	"github.com/im-zhong/eduagent/rag"
	"github.com/im-zhong/eduagent/vectorstore"
)

// Gateway is the persistence surface the handlers need. *store.Store
// implements it; tests substitute fakes.
type Gateway interface {
	CreateUser(ctx context.Context, u *types.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*types.User, error)
	GetUserByUsername(ctx context.Context, username string) (*types.User, error)
	UpdateUser(ctx context.Context, u *types.User) error

	CreateTextbook(ctx context.Context, t *types.Textbook) error
	GetTextbook(ctx context.Context, id uuid.UUID) (*types.Textbook, error)
	UpdateTextbookStatus(ctx context.Context, id uuid.UUID, status types.ExtractionStatus, extractedData map[string]any) error
	SaveExtractionResult(ctx context.Context, points []types.KnowledgePoint, targets []types.AbilityTarget, mistakes []types.CommonMistake) error
	ListKnowledgePoints(ctx context.Context, textbookID *uuid.UUID, ids []uuid.UUID) ([]types.KnowledgePoint, error)
	GetKnowledgePoint(ctx context.Context, id uuid.UUID) (*types.KnowledgePoint, error)
	ListAbilityTargets(ctx context.Context, knowledgePointID uuid.UUID) ([]types.AbilityTarget, error)
	ListCommonMistakes(ctx context.Context, knowledgePointID uuid.UUID) ([]types.CommonMistake, error)

	CreateQuestion(ctx context.Context, q *types.Question) error
	GetQuestion(ctx context.Context, id uuid.UUID) (*types.Question, error)
	ListQuestionsForKnowledgePoint(ctx context.Context, knowledgePointID uuid.UUID, limit int) ([]types.Question, error)
	UpdateQuestionReview(ctx context.Context, id uuid.UUID, reviewed bool, notes string) error

	CreateExercise(ctx context.Context, e *types.Exercise) error
	GetExercise(ctx context.Context, id uuid.UUID) (*types.Exercise, error)
	ListExercisesForClass(ctx context.Context, classID uuid.UUID) ([]types.Exercise, error)
	CreatePracticeSession(ctx context.Context, ps *types.PracticeSession) error
	CompletePracticeSession(ctx context.Context, id uuid.UUID, totalScore, accuracy float64) error
	SessionsByStudent(ctx context.Context, studentID uuid.UUID, limit int) ([]types.PracticeSession, error)
	CreateAnswerSubmission(ctx context.Context, a *types.AnswerSubmission) error
	ListSubmissionsForSession(ctx context.Context, sessionID uuid.UUID) ([]types.AnswerSubmission, error)

	SaveAnalyticsSnapshot(ctx context.Context, snap *types.AnalyticsSnapshot) error
	LatestSnapshot(ctx context.Context, studentID uuid.UUID, snapshotType string) (*types.AnalyticsSnapshot, error)
	PerformanceSummary(ctx context.Context, studentID uuid.UUID) (*store.StudentPerformance, error)
	MistakeFrequency(ctx context.Context, studentID uuid.UUID) ([]store.MistakeCount, error)
	ClassPerformance(ctx context.Context, classID uuid.UUID) ([]store.StudentPerformance, error)
}

// Handler handles HTTP requests for the eduagent API.
type Handler struct {
	gateway    Gateway
	manager    *agent.Manager
	extraction rag.ExtractionStrategy
	retrieval  rag.RetrievalStrategy
	embedder   rag.Embedder
	vectors    vectorstore.Store
	tokens     *auth.TokenManager
	analytics  *cache.AnalyticsCache
	logger     *slog.Logger
}

// Deps bundles handler dependencies. Embedder and Vectors are optional;
// without them extracted knowledge is not mirrored into the vector store.
// Analytics cache is optional.
type Deps struct {
	Gateway    Gateway
	Manager    *agent.Manager
	Extraction rag.ExtractionStrategy
	Retrieval  rag.RetrievalStrategy
	Embedder   rag.Embedder
	Vectors    vectorstore.Store
	Tokens     *auth.TokenManager
	Analytics  *cache.AnalyticsCache
	Logger     *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		gateway:    deps.Gateway,
		manager:    deps.Manager,
		extraction: deps.Extraction,
		retrieval:  deps.Retrieval,
		embedder:   deps.Embedder,
		vectors:    deps.Vectors,
		tokens:     deps.Tokens,
		analytics:  deps.Analytics,
		logger:     logger,
	}
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes the error payload.
type ErrorDetail struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Component string `json:"component,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var eduErr *eduerrors.Error
	if e, ok := err.(*eduerrors.Error); ok {
		eduErr = e
	} else {
		eduErr = eduerrors.NewInternalError("api", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(eduErr.HTTPStatusCode())
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: ErrorDetail{
			Message:   eduErr.Message,
			Type:      eduErr.Type,
			Component: eduErr.Component,
		},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", "error", err)
	}
}

// decodeJSON reads and parses the request body into v.
func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return eduerrors.NewInvalidRequestError("api", "failed to read request body")
	}
	defer r.Body.Close()
	if err := json.Unmarshal(body, v); err != nil {
		return eduerrors.NewInvalidRequestError("api", "invalid JSON: "+err.Error())
	}
	return nil
}

// pathUUID parses the named path parameter as a UUID.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, eduerrors.NewInvalidRequestError("api", name+" must be a UUID")
	}
	return id, nil
}

// HealthCheck handles GET /health/live and /health/ready.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
