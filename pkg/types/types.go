// Package types defines the core domain entities of the eduagent platform.
// These are pure schema: no behavior beyond enum validation helpers.
package types //nolint:revive // package name is intentional

import (
	"time"

	"github.com/google/uuid"
)

// UserRole identifies the role of a platform user.
type UserRole string

// Supported user roles.
const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
	RoleAdmin   UserRole = "admin"
)

// DifficultyLevel grades a question or exercise.
type DifficultyLevel string

// Supported difficulty levels.
const (
	DifficultyEasy   DifficultyLevel = "easy"
	DifficultyMedium DifficultyLevel = "medium"
	DifficultyHard   DifficultyLevel = "hard"
)

// QuestionType identifies the format of a question.
type QuestionType string

// Supported question types.
const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionShortAnswer    QuestionType = "short_answer"
	QuestionEssay          QuestionType = "essay"
	QuestionFillInBlank    QuestionType = "fill_in_blank"
	QuestionCalculation    QuestionType = "calculation"
)

// CognitiveLevel is a Bloom-style cognitive target for a knowledge point.
type CognitiveLevel string

// Supported cognitive levels, ordered from recall to creation.
const (
	CognitiveMemory        CognitiveLevel = "memory"
	CognitiveUnderstanding CognitiveLevel = "understanding"
	CognitiveApplication   CognitiveLevel = "application"
	CognitiveAnalysis      CognitiveLevel = "analysis"
	CognitiveEvaluation    CognitiveLevel = "evaluation"
	CognitiveCreation      CognitiveLevel = "creation"
)

// CognitiveLevels lists all levels in ascending order.
func CognitiveLevels() []CognitiveLevel {
	return []CognitiveLevel{
		CognitiveMemory,
		CognitiveUnderstanding,
		CognitiveApplication,
		CognitiveAnalysis,
		CognitiveEvaluation,
		CognitiveCreation,
	}
}

// SubjectArea identifies the academic subject of content.
type SubjectArea string

// Supported subject areas.
const (
	SubjectMath            SubjectArea = "math"
	SubjectScience         SubjectArea = "science"
	SubjectHistory         SubjectArea = "history"
	SubjectLanguage        SubjectArea = "language"
	SubjectComputerScience SubjectArea = "computer_science"
	SubjectPhysics         SubjectArea = "physics"
	SubjectChemistry       SubjectArea = "chemistry"
	SubjectBiology         SubjectArea = "biology"
	SubjectGeneral         SubjectArea = "general"
)

// ExtractionStatus tracks the knowledge extraction pipeline for a textbook.
type ExtractionStatus string

// Extraction pipeline states.
const (
	ExtractionPending    ExtractionStatus = "pending"
	ExtractionProcessing ExtractionStatus = "processing"
	ExtractionCompleted  ExtractionStatus = "completed"
	ExtractionFailed     ExtractionStatus = "failed"
)

// User is a platform account: student, teacher, or admin.
type User struct {
	ID               uuid.UUID  `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"-"`
	Role             UserRole   `json:"role"`
	GradeLevel       string     `json:"grade_level,omitempty"`
	SubjectInterests []string   `json:"subject_interests,omitempty"`
	IsActive         bool       `json:"is_active"`
	CreatedAt        time.Time  `json:"created_at"`
	LastLogin        *time.Time `json:"last_login,omitempty"`
}

// Class groups students under a teacher for a subject.
type Class struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	GradeLevel  string      `json:"grade_level,omitempty"`
	Subject     SubjectArea `json:"subject,omitempty"`
	TeacherID   *uuid.UUID  `json:"teacher_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Textbook is an uploaded source document for knowledge extraction.
type Textbook struct {
	ID               uuid.UUID        `json:"id"`
	Title            string           `json:"title"`
	Author           string           `json:"author,omitempty"`
	Publisher        string           `json:"publisher,omitempty"`
	Subject          SubjectArea      `json:"subject"`
	GradeLevel       string           `json:"grade_level,omitempty"`
	FilePath         string           `json:"file_path,omitempty"`
	FileType         string           `json:"file_type,omitempty"`
	ExtractionStatus ExtractionStatus `json:"extraction_status"`
	ExtractedData    map[string]any   `json:"extracted_data,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	ProcessedAt      *time.Time       `json:"processed_at,omitempty"`
}

// KnowledgePoint is a discrete educational concept extracted from a textbook.
type KnowledgePoint struct {
	ID              uuid.UUID      `json:"id"`
	TextbookID      uuid.UUID      `json:"textbook_id"`
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	Chapter         string         `json:"chapter,omitempty"`
	Section         string         `json:"section,omitempty"`
	Subject         SubjectArea    `json:"subject,omitempty"`
	CognitiveLevel  CognitiveLevel `json:"cognitive_level,omitempty"`
	ImportanceScore float64        `json:"importance_score"`
	CreatedAt       time.Time      `json:"created_at"`
}

// AbilityTarget is a cognitive-level learning objective tied to a knowledge point.
type AbilityTarget struct {
	ID               uuid.UUID      `json:"id"`
	KnowledgePointID uuid.UUID      `json:"knowledge_point_id"`
	CognitiveLevel   CognitiveLevel `json:"cognitive_level"`
	Description      string         `json:"description,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// CommonMistake is a catalogued error pattern students make for a knowledge point.
type CommonMistake struct {
	ID               uuid.UUID      `json:"id"`
	KnowledgePointID uuid.UUID      `json:"knowledge_point_id"`
	PatternName      string         `json:"pattern_name"`
	Description      string         `json:"description,omitempty"`
	Frequency        float64        `json:"frequency"`
	Severity         float64        `json:"severity"`
	Examples         map[string]any `json:"examples,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// QuestionOption is a single answer option of a multiple-choice question.
type QuestionOption struct {
	Text           string `json:"text"`
	Correct        bool   `json:"correct"`
	MistakePattern string `json:"mistake_pattern,omitempty"`
}

// Question is a generated or authored assessment item.
type Question struct {
	ID                  uuid.UUID        `json:"id"`
	QuestionText        string           `json:"question_text"`
	QuestionType        QuestionType     `json:"question_type"`
	Difficulty          DifficultyLevel  `json:"difficulty"`
	CognitiveLevel      CognitiveLevel   `json:"cognitive_level,omitempty"`
	Subject             SubjectArea      `json:"subject,omitempty"`
	Options             []QuestionOption `json:"options,omitempty"`
	CorrectAnswer       string           `json:"correct_answer,omitempty"`
	Explanation         string           `json:"explanation,omitempty"`
	SolutionSteps       []string         `json:"solution_steps,omitempty"`
	EstimatedDifficulty float64          `json:"estimated_difficulty"`
	SourceTextbookID    *uuid.UUID       `json:"source_textbook_id,omitempty"`
	KnowledgePointIDs   []uuid.UUID      `json:"knowledge_point_ids,omitempty"`
	GeneratedByAI       bool             `json:"generated_by_ai"`
	ReviewedByTeacher   bool             `json:"reviewed_by_teacher"`
	ReviewNotes         string           `json:"review_notes,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
}

// DistractorPattern links a multiple-choice distractor to the common mistake
// it was engineered from.
type DistractorPattern struct {
	ID                 uuid.UUID `json:"id"`
	QuestionID         uuid.UUID `json:"question_id"`
	CommonMistakeID    uuid.UUID `json:"common_mistake_id"`
	DistractorText     string    `json:"distractor_text"`
	EffectivenessScore float64   `json:"effectiveness_score"`
	UsageCount         int       `json:"usage_count"`
	CreatedAt          time.Time `json:"created_at"`
}

// Exercise is an ordered set of questions assigned to a class.
type Exercise struct {
	ID               uuid.UUID       `json:"id"`
	Title            string          `json:"title"`
	Description      string          `json:"description,omitempty"`
	Subject          SubjectArea     `json:"subject,omitempty"`
	Difficulty       DifficultyLevel `json:"difficulty,omitempty"`
	ClassID          *uuid.UUID      `json:"class_id,omitempty"`
	CreatorID        *uuid.UUID      `json:"creator_id,omitempty"`
	QuestionIDs      []uuid.UUID     `json:"question_ids,omitempty"`
	TimeLimitMinutes int             `json:"time_limit_minutes,omitempty"`
	IsPublished      bool            `json:"is_published"`
	CreatedAt        time.Time       `json:"created_at"`
}

// PracticeSession is one student's run through an exercise.
type PracticeSession struct {
	ID               uuid.UUID  `json:"id"`
	StudentID        uuid.UUID  `json:"student_id"`
	ExerciseID       uuid.UUID  `json:"exercise_id"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	TimeLimitMinutes int        `json:"time_limit_minutes,omitempty"`
	Completed        bool       `json:"completed"`
	TotalScore       float64    `json:"total_score"`
	Accuracy         float64    `json:"accuracy"`
	CreatedAt        time.Time  `json:"created_at"`
}

// AnswerSubmission is a single answer to a question within a session.
type AnswerSubmission struct {
	ID                uuid.UUID  `json:"id"`
	StudentID         uuid.UUID  `json:"student_id"`
	QuestionID        uuid.UUID  `json:"question_id"`
	PracticeSessionID *uuid.UUID `json:"practice_session_id,omitempty"`
	AnswerText        string     `json:"answer_text,omitempty"`
	IsCorrect         *bool      `json:"is_correct,omitempty"`
	Score             float64    `json:"score"`
	TimeTakenSeconds  float64    `json:"time_taken_seconds,omitempty"`
	AIFeedback        string     `json:"ai_feedback,omitempty"`
	MistakePatternID  *uuid.UUID `json:"mistake_pattern_id,omitempty"`
	SubmittedAt       time.Time  `json:"submitted_at"`
}

// AnalyticsSnapshot is a materialized analytics computation for a student or class.
type AnalyticsSnapshot struct {
	ID              uuid.UUID      `json:"id"`
	StudentID       *uuid.UUID     `json:"student_id,omitempty"`
	ClassID         *uuid.UUID     `json:"class_id,omitempty"`
	SnapshotType    string         `json:"snapshot_type"` // daily, weekly, monthly, knowledge_point, overall
	DataPeriodStart *time.Time     `json:"data_period_start,omitempty"`
	DataPeriodEnd   *time.Time     `json:"data_period_end,omitempty"`
	AnalyticsData   map[string]any `json:"analytics_data,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}
