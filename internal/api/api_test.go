package api

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/im-zhong/eduagent/internal/store"
	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/pkg/types"
)

// fakeGateway is an in-memory Gateway for handler tests. It also satisfies
// the agent package's reader interfaces so real agents can run on top of it.
type fakeGateway struct {
	users        map[uuid.UUID]*types.User
	textbooks    map[uuid.UUID]*types.Textbook
	points       map[uuid.UUID]types.KnowledgePoint
	targets      map[uuid.UUID][]types.AbilityTarget
	mistakes     map[uuid.UUID][]types.CommonMistake
	questions    map[uuid.UUID]*types.Question
	distractors  map[uuid.UUID][]types.DistractorPattern
	exercises    map[uuid.UUID]*types.Exercise
	sessions     map[uuid.UUID]*types.PracticeSession
	submissions  map[uuid.UUID][]types.AnswerSubmission
	snapshots    []types.AnalyticsSnapshot
	performance  map[uuid.UUID]*store.StudentPerformance
	mistakeFreqs map[uuid.UUID][]store.MistakeCount

	failWith error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		users:        make(map[uuid.UUID]*types.User),
		textbooks:    make(map[uuid.UUID]*types.Textbook),
		points:       make(map[uuid.UUID]types.KnowledgePoint),
		targets:      make(map[uuid.UUID][]types.AbilityTarget),
		mistakes:     make(map[uuid.UUID][]types.CommonMistake),
		questions:    make(map[uuid.UUID]*types.Question),
		distractors:  make(map[uuid.UUID][]types.DistractorPattern),
		exercises:    make(map[uuid.UUID]*types.Exercise),
		sessions:     make(map[uuid.UUID]*types.PracticeSession),
		submissions:  make(map[uuid.UUID][]types.AnswerSubmission),
		performance:  make(map[uuid.UUID]*store.StudentPerformance),
		mistakeFreqs: make(map[uuid.UUID][]store.MistakeCount),
	}
}

func (g *fakeGateway) CreateUser(_ context.Context, u *types.User) error {
	if g.failWith != nil {
		return g.failWith
	}
	g.users[u.ID] = u
	return nil
}

func (g *fakeGateway) GetUser(_ context.Context, id uuid.UUID) (*types.User, error) {
	u, ok := g.users[id]
	if !ok {
		return nil, eduerrors.NewNotFoundError("store", "user not found")
	}
	return u, nil
}

func (g *fakeGateway) GetUserByUsername(_ context.Context, username string) (*types.User, error) {
	for _, u := range g.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, eduerrors.NewNotFoundError("store", "user not found")
}

func (g *fakeGateway) UpdateUser(_ context.Context, u *types.User) error {
	g.users[u.ID] = u
	return nil
}

func (g *fakeGateway) CreateTextbook(_ context.Context, t *types.Textbook) error {
	if g.failWith != nil {
		return g.failWith
	}
	g.textbooks[t.ID] = t
	return nil
}

func (g *fakeGateway) GetTextbook(_ context.Context, id uuid.UUID) (*types.Textbook, error) {
	t, ok := g.textbooks[id]
	if !ok {
		return nil, eduerrors.NewNotFoundError("store", "textbook not found")
	}
	return t, nil
}

func (g *fakeGateway) UpdateTextbookStatus(_ context.Context, id uuid.UUID, status types.ExtractionStatus, data map[string]any) error {
	t, ok := g.textbooks[id]
	if !ok {
		return eduerrors.NewNotFoundError("store", "textbook not found")
	}
	t.ExtractionStatus = status
	if data != nil {
		t.ExtractedData = data
	}
	return nil
}

func (g *fakeGateway) SaveExtractionResult(_ context.Context, points []types.KnowledgePoint, targets []types.AbilityTarget, mistakes []types.CommonMistake) error {
	for _, kp := range points {
		g.points[kp.ID] = kp
	}
	for _, at := range targets {
		g.targets[at.KnowledgePointID] = append(g.targets[at.KnowledgePointID], at)
	}
	for _, cm := range mistakes {
		g.mistakes[cm.KnowledgePointID] = append(g.mistakes[cm.KnowledgePointID], cm)
	}
	return nil
}

func (g *fakeGateway) ListKnowledgePoints(_ context.Context, textbookID *uuid.UUID, ids []uuid.UUID) ([]types.KnowledgePoint, error) {
	var out []types.KnowledgePoint
	for _, kp := range g.points {
		if textbookID != nil && kp.TextbookID != *textbookID {
			continue
		}
		if len(ids) > 0 {
			keep := false
			for _, id := range ids {
				if kp.ID == id {
					keep = true
					break
				}
			}
			if !keep {
				continue
			}
		}
		out = append(out, kp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (g *fakeGateway) GetKnowledgePoint(_ context.Context, id uuid.UUID) (*types.KnowledgePoint, error) {
	kp, ok := g.points[id]
	if !ok {
		return nil, eduerrors.NewNotFoundError("store", "knowledge point not found")
	}
	return &kp, nil
}

func (g *fakeGateway) ListAbilityTargets(_ context.Context, kpID uuid.UUID) ([]types.AbilityTarget, error) {
	return g.targets[kpID], nil
}

func (g *fakeGateway) ListCommonMistakes(_ context.Context, kpID uuid.UUID) ([]types.CommonMistake, error) {
	return g.mistakes[kpID], nil
}

func (g *fakeGateway) CreateQuestion(_ context.Context, q *types.Question) error {
	if g.failWith != nil {
		return g.failWith
	}
	g.questions[q.ID] = q
	return nil
}

func (g *fakeGateway) GetQuestion(_ context.Context, id uuid.UUID) (*types.Question, error) {
	q, ok := g.questions[id]
	if !ok {
		return nil, eduerrors.NewNotFoundError("store", "question not found")
	}
	return q, nil
}

func (g *fakeGateway) ListQuestionsForKnowledgePoint(_ context.Context, kpID uuid.UUID, _ int) ([]types.Question, error) {
	var out []types.Question
	for _, q := range g.questions {
		for _, id := range q.KnowledgePointIDs {
			if id == kpID {
				out = append(out, *q)
				break
			}
		}
	}
	return out, nil
}

func (g *fakeGateway) UpdateQuestionReview(_ context.Context, id uuid.UUID, reviewed bool, notes string) error {
	q, ok := g.questions[id]
	if !ok {
		return eduerrors.NewNotFoundError("store", "question not found")
	}
	q.ReviewedByTeacher = reviewed
	q.ReviewNotes = notes
	return nil
}

func (g *fakeGateway) ListDistractorPatterns(_ context.Context, questionID uuid.UUID) ([]types.DistractorPattern, error) {
	return g.distractors[questionID], nil
}

func (g *fakeGateway) CreateExercise(_ context.Context, e *types.Exercise) error {
	g.exercises[e.ID] = e
	return nil
}

func (g *fakeGateway) GetExercise(_ context.Context, id uuid.UUID) (*types.Exercise, error) {
	e, ok := g.exercises[id]
	if !ok {
		return nil, eduerrors.NewNotFoundError("store", "exercise not found")
	}
	return e, nil
}

func (g *fakeGateway) ListExercisesForClass(_ context.Context, classID uuid.UUID) ([]types.Exercise, error) {
	var out []types.Exercise
	for _, e := range g.exercises {
		if e.ClassID != nil && *e.ClassID == classID && e.IsPublished {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (g *fakeGateway) CreatePracticeSession(_ context.Context, ps *types.PracticeSession) error {
	g.sessions[ps.ID] = ps
	return nil
}

func (g *fakeGateway) CompletePracticeSession(_ context.Context, id uuid.UUID, totalScore, accuracy float64) error {
	s, ok := g.sessions[id]
	if !ok {
		return eduerrors.NewNotFoundError("store", "practice session not found")
	}
	now := time.Now().UTC()
	s.Completed = true
	s.EndTime = &now
	s.TotalScore = totalScore
	s.Accuracy = accuracy
	return nil
}

func (g *fakeGateway) SessionsByStudent(_ context.Context, studentID uuid.UUID, _ int) ([]types.PracticeSession, error) {
	var out []types.PracticeSession
	for _, s := range g.sessions {
		if s.StudentID == studentID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (g *fakeGateway) CreateAnswerSubmission(_ context.Context, a *types.AnswerSubmission) error {
	if g.failWith != nil {
		return g.failWith
	}
	if a.PracticeSessionID != nil {
		g.submissions[*a.PracticeSessionID] = append(g.submissions[*a.PracticeSessionID], *a)
	}
	return nil
}

func (g *fakeGateway) ListSubmissionsForSession(_ context.Context, sessionID uuid.UUID) ([]types.AnswerSubmission, error) {
	return g.submissions[sessionID], nil
}

func (g *fakeGateway) SaveAnalyticsSnapshot(_ context.Context, snap *types.AnalyticsSnapshot) error {
	g.snapshots = append(g.snapshots, *snap)
	return nil
}

func (g *fakeGateway) LatestSnapshot(_ context.Context, studentID uuid.UUID, snapshotType string) (*types.AnalyticsSnapshot, error) {
	for i := len(g.snapshots) - 1; i >= 0; i-- {
		snap := g.snapshots[i]
		if snap.StudentID != nil && *snap.StudentID == studentID && snap.SnapshotType == snapshotType {
			return &snap, nil
		}
	}
	return nil, eduerrors.NewNotFoundError("store", "snapshot not found")
}

func (g *fakeGateway) PerformanceSummary(_ context.Context, studentID uuid.UUID) (*store.StudentPerformance, error) {
	if perf, ok := g.performance[studentID]; ok {
		return perf, nil
	}
	return &store.StudentPerformance{StudentID: studentID}, nil
}

func (g *fakeGateway) MistakeFrequency(_ context.Context, studentID uuid.UUID) ([]store.MistakeCount, error) {
	return g.mistakeFreqs[studentID], nil
}

func (g *fakeGateway) ClassPerformance(_ context.Context, classID uuid.UUID) ([]store.StudentPerformance, error) {
	var out []store.StudentPerformance
	for _, perf := range g.performance {
		out = append(out, *perf)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StudentID.String() < out[j].StudentID.String()
	})
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}
