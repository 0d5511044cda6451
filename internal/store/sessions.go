package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/pkg/types"
)

// CreateExercise inserts an exercise and its ordered question links in one
// transaction.
func (s *Store) CreateExercise(ctx context.Context, e *types.Exercise) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin exercise tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO exercises (id, title, description, subject, difficulty, class_id, creator_id, time_limit_minutes, is_published, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.Title, nullString(e.Description), nullString(string(e.Subject)),
		nullString(string(e.Difficulty)), e.ClassID, e.CreatorID,
		e.TimeLimitMinutes, e.IsPublished, e.CreatedAt,
	); err != nil {
		return fmt.Errorf("create exercise: %w", err)
	}
	for i, qID := range e.QuestionIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO exercise_questions (exercise_id, question_id, position) VALUES ($1,$2,$3)`,
			e.ID, qID, i,
		); err != nil {
			return fmt.Errorf("link exercise question: %w", err)
		}
	}
	return tx.Commit()
}

// GetExercise fetches an exercise with its question ids in order.
func (s *Store) GetExercise(ctx context.Context, id uuid.UUID) (*types.Exercise, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, subject, difficulty, class_id, creator_id, time_limit_minutes, is_published, created_at
		 FROM exercises WHERE id=$1`, id)

	e := &types.Exercise{}
	var description, subject, difficulty sql.NullString
	err := row.Scan(&e.ID, &e.Title, &description, &subject, &difficulty,
		&e.ClassID, &e.CreatorID, &e.TimeLimitMinutes, &e.IsPublished, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eduerrors.NewNotFoundError(component, "exercise not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get exercise: %w", err)
	}
	e.Description = description.String
	e.Subject = types.SubjectArea(subject.String)
	e.Difficulty = types.DifficultyLevel(difficulty.String)

	rows, err := s.db.QueryContext(ctx,
		`SELECT question_id FROM exercise_questions WHERE exercise_id=$1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("get exercise questions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var qID uuid.UUID
		if err := rows.Scan(&qID); err != nil {
			return nil, err
		}
		e.QuestionIDs = append(e.QuestionIDs, qID)
	}
	return e, rows.Err()
}

// ListExercisesForClass returns a class's published exercises, newest first.
func (s *Store) ListExercisesForClass(ctx context.Context, classID uuid.UUID) ([]types.Exercise, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, subject, difficulty, class_id, creator_id, time_limit_minutes, is_published, created_at
		 FROM exercises WHERE class_id=$1 AND is_published ORDER BY created_at DESC`, classID)
	if err != nil {
		return nil, fmt.Errorf("list exercises: %w", err)
	}
	defer rows.Close()

	var out []types.Exercise
	for rows.Next() {
		var e types.Exercise
		var description, subject, difficulty sql.NullString
		if err := rows.Scan(&e.ID, &e.Title, &description, &subject, &difficulty,
			&e.ClassID, &e.CreatorID, &e.TimeLimitMinutes, &e.IsPublished, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Description = description.String
		e.Subject = types.SubjectArea(subject.String)
		e.Difficulty = types.DifficultyLevel(difficulty.String)
		out = append(out, e)
	}
	return out, rows.Err()
}

// CreatePracticeSession starts a student's run through an exercise.
func (s *Store) CreatePracticeSession(ctx context.Context, ps *types.PracticeSession) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO practice_sessions (id, student_id, exercise_id, start_time, end_time, time_limit_minutes, completed, total_score, accuracy, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		ps.ID, ps.StudentID, ps.ExerciseID, ps.StartTime, ps.EndTime,
		ps.TimeLimitMinutes, ps.Completed, ps.TotalScore, ps.Accuracy, ps.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create practice session: %w", err)
	}
	return nil
}

// CompletePracticeSession closes a session with its final score and accuracy.
func (s *Store) CompletePracticeSession(ctx context.Context, id uuid.UUID, totalScore, accuracy float64) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE practice_sessions SET completed=TRUE, end_time=$2, total_score=$3, accuracy=$4 WHERE id=$1`,
		id, now, totalScore, accuracy,
	)
	if err != nil {
		return fmt.Errorf("complete practice session: %w", err)
	}
	return requireRow(res, "practice session not found")
}

// SessionsByStudent returns a student's sessions, newest first.
func (s *Store) SessionsByStudent(ctx context.Context, studentID uuid.UUID, limit int) ([]types.PracticeSession, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, student_id, exercise_id, start_time, end_time, time_limit_minutes, completed, total_score, accuracy, created_at
		 FROM practice_sessions WHERE student_id=$1 ORDER BY created_at DESC LIMIT $2`,
		studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []types.PracticeSession
	for rows.Next() {
		var ps types.PracticeSession
		if err := rows.Scan(&ps.ID, &ps.StudentID, &ps.ExerciseID, &ps.StartTime, &ps.EndTime,
			&ps.TimeLimitMinutes, &ps.Completed, &ps.TotalScore, &ps.Accuracy, &ps.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

// CreateAnswerSubmission records a student's answer.
func (s *Store) CreateAnswerSubmission(ctx context.Context, a *types.AnswerSubmission) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO answer_submissions (id, student_id, question_id, practice_session_id, answer_text, is_correct, score, time_taken_seconds, ai_feedback, mistake_pattern_id, submitted_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		a.ID, a.StudentID, a.QuestionID, a.PracticeSessionID, nullString(a.AnswerText),
		a.IsCorrect, a.Score, a.TimeTakenSeconds, nullString(a.AIFeedback),
		a.MistakePatternID, a.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("create answer submission: %w", err)
	}
	return nil
}

// ListSubmissionsForSession returns the answers of one session, oldest first.
func (s *Store) ListSubmissionsForSession(ctx context.Context, sessionID uuid.UUID) ([]types.AnswerSubmission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, student_id, question_id, practice_session_id, answer_text, is_correct, score, time_taken_seconds, ai_feedback, mistake_pattern_id, submitted_at
		 FROM answer_submissions WHERE practice_session_id=$1 ORDER BY submitted_at`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var out []types.AnswerSubmission
	for rows.Next() {
		var a types.AnswerSubmission
		var answerText, aiFeedback sql.NullString
		if err := rows.Scan(&a.ID, &a.StudentID, &a.QuestionID, &a.PracticeSessionID,
			&answerText, &a.IsCorrect, &a.Score, &a.TimeTakenSeconds, &aiFeedback,
			&a.MistakePatternID, &a.SubmittedAt); err != nil {
			return nil, err
		}
		a.AnswerText = answerText.String
		a.AIFeedback = aiFeedback.String
		out = append(out, a)
	}
	return out, rows.Err()
}
