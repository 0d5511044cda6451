package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/pkg/types"
)

const questionColumns = `id, question_text, question_type, difficulty, cognitive_level, subject, options, correct_answer, explanation, solution_steps, estimated_difficulty, source_textbook_id, generated_by_ai, reviewed_by_teacher, review_notes, created_at`

// CreateQuestion inserts a question and its knowledge point links in one
// transaction.
func (s *Store) CreateQuestion(ctx context.Context, q *types.Question) error {
	options, err := marshalJSON(q.Options)
	if err != nil {
		return err
	}
	steps, err := marshalJSON(q.SolutionSteps)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin question tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO questions (`+questionColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		q.ID, q.QuestionText, q.QuestionType, q.Difficulty,
		nullString(string(q.CognitiveLevel)), nullString(string(q.Subject)),
		options, nullString(q.CorrectAnswer), nullString(q.Explanation), steps,
		q.EstimatedDifficulty, q.SourceTextbookID, q.GeneratedByAI,
		q.ReviewedByTeacher, nullString(q.ReviewNotes), q.CreatedAt,
	); err != nil {
		return fmt.Errorf("create question: %w", err)
	}
	for _, kpID := range q.KnowledgePointIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO question_knowledge_points (question_id, knowledge_point_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`,
			q.ID, kpID,
		); err != nil {
			return fmt.Errorf("link question knowledge point: %w", err)
		}
	}
	return tx.Commit()
}

// GetQuestion fetches a question with its knowledge point links.
func (s *Store) GetQuestion(ctx context.Context, id uuid.UUID) (*types.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id=$1`, id)
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, eduerrors.NewNotFoundError(component, "question not found")
	}
	q, err := scanQuestion(rows)
	if err != nil {
		return nil, err
	}
	rows.Close()

	kpRows, err := s.db.QueryContext(ctx,
		`SELECT knowledge_point_id FROM question_knowledge_points WHERE question_id=$1 ORDER BY knowledge_point_id`, id)
	if err != nil {
		return nil, fmt.Errorf("get question links: %w", err)
	}
	defer kpRows.Close()
	for kpRows.Next() {
		var kpID uuid.UUID
		if err := kpRows.Scan(&kpID); err != nil {
			return nil, err
		}
		q.KnowledgePointIDs = append(q.KnowledgePointIDs, kpID)
	}
	return &q, kpRows.Err()
}

// ListQuestionsForKnowledgePoint returns the questions linked to a knowledge
// point, hardest first.
func (s *Store) ListQuestionsForKnowledgePoint(ctx context.Context, knowledgePointID uuid.UUID, limit int) ([]types.Question, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+prefixColumns("q", questionColumns)+`
		 FROM questions q JOIN question_knowledge_points qkp ON qkp.question_id = q.id
		 WHERE qkp.knowledge_point_id=$1 ORDER BY q.estimated_difficulty DESC, q.id LIMIT $2`,
		knowledgePointID, limit)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var out []types.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// UpdateQuestionReview records a teacher review outcome.
func (s *Store) UpdateQuestionReview(ctx context.Context, id uuid.UUID, reviewed bool, notes string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET reviewed_by_teacher=$2, review_notes=$3 WHERE id=$1`,
		id, reviewed, nullString(notes),
	)
	if err != nil {
		return fmt.Errorf("update question review: %w", err)
	}
	return requireRow(res, "question not found")
}

func scanQuestion(rows *sql.Rows) (types.Question, error) {
	var q types.Question
	var cognitiveLevel, subject, correctAnswer, explanation, reviewNotes sql.NullString
	var options, steps []byte
	err := rows.Scan(&q.ID, &q.QuestionText, &q.QuestionType, &q.Difficulty,
		&cognitiveLevel, &subject, &options, &correctAnswer, &explanation, &steps,
		&q.EstimatedDifficulty, &q.SourceTextbookID, &q.GeneratedByAI,
		&q.ReviewedByTeacher, &reviewNotes, &q.CreatedAt)
	if err != nil {
		return q, fmt.Errorf("scan question: %w", err)
	}
	q.CognitiveLevel = types.CognitiveLevel(cognitiveLevel.String)
	q.Subject = types.SubjectArea(subject.String)
	q.CorrectAnswer = correctAnswer.String
	q.Explanation = explanation.String
	q.ReviewNotes = reviewNotes.String
	if err := unmarshalJSON(options, &q.Options); err != nil {
		return q, err
	}
	if err := unmarshalJSON(steps, &q.SolutionSteps); err != nil {
		return q, err
	}
	return q, nil
}

// CreateDistractorPattern records a distractor derived from a common mistake.
func (s *Store) CreateDistractorPattern(ctx context.Context, dp *types.DistractorPattern) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO distractor_patterns (id, question_id, common_mistake_id, distractor_text, effectiveness_score, usage_count, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		dp.ID, dp.QuestionID, dp.CommonMistakeID, dp.DistractorText,
		dp.EffectivenessScore, dp.UsageCount, dp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create distractor pattern: %w", err)
	}
	return nil
}

// ListDistractorPatterns returns the distractors recorded for a question.
func (s *Store) ListDistractorPatterns(ctx context.Context, questionID uuid.UUID) ([]types.DistractorPattern, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question_id, common_mistake_id, distractor_text, effectiveness_score, usage_count, created_at
		 FROM distractor_patterns WHERE question_id=$1 ORDER BY effectiveness_score DESC, id`,
		questionID)
	if err != nil {
		return nil, fmt.Errorf("list distractor patterns: %w", err)
	}
	defer rows.Close()

	var out []types.DistractorPattern
	for rows.Next() {
		var dp types.DistractorPattern
		if err := rows.Scan(&dp.ID, &dp.QuestionID, &dp.CommonMistakeID, &dp.DistractorText,
			&dp.EffectivenessScore, &dp.UsageCount, &dp.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, dp)
	}
	return out, rows.Err()
}

// prefixColumns qualifies a comma-separated column list with a table alias.
func prefixColumns(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
