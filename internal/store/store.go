// Package store is the PostgreSQL persistence gateway. Each method runs as
// one implicit transaction; SaveExtractionResult is the only multi-statement
// transaction. Concurrent writers follow last-write-wins.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/lib/pq"

	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
)

const component = "store"

// Store wraps a PostgreSQL connection pool.
type Store struct {
	db *sql.DB
}

// New opens a PostgreSQL connection with the given DSN.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection pool, mainly for tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return eduerrors.NewConnectionError(component, err.Error())
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// EnsureSchema creates all tables and indexes. Statements are idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		grade_level TEXT,
		subject_interests JSONB,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		last_login TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS classes (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		grade_level TEXT,
		subject TEXT,
		teacher_id UUID REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_classes (
		user_id UUID NOT NULL REFERENCES users(id),
		class_id UUID NOT NULL REFERENCES classes(id),
		PRIMARY KEY (user_id, class_id)
	)`,
	`CREATE TABLE IF NOT EXISTS textbooks (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		author TEXT,
		publisher TEXT,
		subject TEXT NOT NULL,
		grade_level TEXT,
		file_path TEXT,
		file_type TEXT,
		extraction_status TEXT NOT NULL,
		extracted_data JSONB,
		created_at TIMESTAMPTZ NOT NULL,
		processed_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS knowledge_points (
		id UUID PRIMARY KEY,
		textbook_id UUID NOT NULL REFERENCES textbooks(id),
		name TEXT NOT NULL,
		description TEXT,
		chapter TEXT,
		section TEXT,
		subject TEXT,
		cognitive_level TEXT,
		importance_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ability_targets (
		id UUID PRIMARY KEY,
		knowledge_point_id UUID NOT NULL REFERENCES knowledge_points(id),
		cognitive_level TEXT NOT NULL,
		description TEXT,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS common_mistakes (
		id UUID PRIMARY KEY,
		knowledge_point_id UUID NOT NULL REFERENCES knowledge_points(id),
		pattern_name TEXT NOT NULL,
		description TEXT,
		frequency DOUBLE PRECISION NOT NULL DEFAULT 0,
		severity DOUBLE PRECISION NOT NULL DEFAULT 0,
		examples JSONB,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS questions (
		id UUID PRIMARY KEY,
		question_text TEXT NOT NULL,
		question_type TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		cognitive_level TEXT,
		subject TEXT,
		options JSONB,
		correct_answer TEXT,
		explanation TEXT,
		solution_steps JSONB,
		estimated_difficulty DOUBLE PRECISION NOT NULL DEFAULT 0,
		source_textbook_id UUID REFERENCES textbooks(id),
		generated_by_ai BOOLEAN NOT NULL DEFAULT FALSE,
		reviewed_by_teacher BOOLEAN NOT NULL DEFAULT FALSE,
		review_notes TEXT,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS question_knowledge_points (
		question_id UUID NOT NULL REFERENCES questions(id),
		knowledge_point_id UUID NOT NULL REFERENCES knowledge_points(id),
		PRIMARY KEY (question_id, knowledge_point_id)
	)`,
	`CREATE TABLE IF NOT EXISTS distractor_patterns (
		id UUID PRIMARY KEY,
		question_id UUID NOT NULL REFERENCES questions(id),
		common_mistake_id UUID NOT NULL REFERENCES common_mistakes(id),
		distractor_text TEXT NOT NULL,
		effectiveness_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		usage_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS exercises (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		subject TEXT,
		difficulty TEXT,
		class_id UUID REFERENCES classes(id),
		creator_id UUID REFERENCES users(id),
		time_limit_minutes INTEGER NOT NULL DEFAULT 0,
		is_published BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS exercise_questions (
		exercise_id UUID NOT NULL REFERENCES exercises(id),
		question_id UUID NOT NULL REFERENCES questions(id),
		position INTEGER NOT NULL,
		PRIMARY KEY (exercise_id, question_id)
	)`,
	`CREATE TABLE IF NOT EXISTS practice_sessions (
		id UUID PRIMARY KEY,
		student_id UUID NOT NULL REFERENCES users(id),
		exercise_id UUID NOT NULL REFERENCES exercises(id),
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ,
		time_limit_minutes INTEGER NOT NULL DEFAULT 0,
		completed BOOLEAN NOT NULL DEFAULT FALSE,
		total_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS answer_submissions (
		id UUID PRIMARY KEY,
		student_id UUID NOT NULL REFERENCES users(id),
		question_id UUID NOT NULL REFERENCES questions(id),
		practice_session_id UUID REFERENCES practice_sessions(id),
		answer_text TEXT,
		is_correct BOOLEAN,
		score DOUBLE PRECISION NOT NULL DEFAULT 0,
		time_taken_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
		ai_feedback TEXT,
		mistake_pattern_id UUID REFERENCES common_mistakes(id),
		submitted_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS analytics_snapshots (
		id UUID PRIMARY KEY,
		student_id UUID REFERENCES users(id),
		class_id UUID REFERENCES classes(id),
		snapshot_type TEXT NOT NULL,
		data_period_start TIMESTAMPTZ,
		data_period_end TIMESTAMPTZ,
		analytics_data JSONB,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_kp_textbook ON knowledge_points(textbook_id)`,
	`CREATE INDEX IF NOT EXISTS idx_targets_kp ON ability_targets(knowledge_point_id)`,
	`CREATE INDEX IF NOT EXISTS idx_mistakes_kp ON common_mistakes(knowledge_point_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_student ON practice_sessions(student_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_session ON answer_submissions(practice_session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_student ON analytics_snapshots(student_id, created_at DESC)`,
}

// marshalJSON serializes a value for a JSONB column, mapping empty values to
// SQL NULL.
func marshalJSON(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		if len(t) == 0 {
			return nil, nil
		}
	case []string:
		if len(t) == 0 {
			return nil, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal jsonb: %w", err)
	}
	return raw, nil
}

func unmarshalJSON(raw []byte, out any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
