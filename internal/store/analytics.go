package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/pkg/types"
)

// SaveAnalyticsSnapshot persists a materialized analytics computation.
func (s *Store) SaveAnalyticsSnapshot(ctx context.Context, snap *types.AnalyticsSnapshot) error {
	data, err := marshalJSON(snap.AnalyticsData)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analytics_snapshots (id, student_id, class_id, snapshot_type, data_period_start, data_period_end, analytics_data, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		snap.ID, snap.StudentID, snap.ClassID, snap.SnapshotType,
		snap.DataPeriodStart, snap.DataPeriodEnd, data, snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save analytics snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recent snapshot of a given type for a
// student.
func (s *Store) LatestSnapshot(ctx context.Context, studentID uuid.UUID, snapshotType string) (*types.AnalyticsSnapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, student_id, class_id, snapshot_type, data_period_start, data_period_end, analytics_data, created_at
		 FROM analytics_snapshots WHERE student_id=$1 AND snapshot_type=$2
		 ORDER BY created_at DESC LIMIT 1`,
		studentID, snapshotType)

	snap := &types.AnalyticsSnapshot{}
	var data []byte
	err := row.Scan(&snap.ID, &snap.StudentID, &snap.ClassID, &snap.SnapshotType,
		&snap.DataPeriodStart, &snap.DataPeriodEnd, &data, &snap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eduerrors.NewNotFoundError(component, "snapshot not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	if err := unmarshalJSON(data, &snap.AnalyticsData); err != nil {
		return nil, err
	}
	return snap, nil
}

// MistakeCount pairs a mistake pattern with how often students hit it.
type MistakeCount struct {
	MistakeID   uuid.UUID `json:"mistake_id"`
	PatternName string    `json:"pattern_name"`
	Count       int       `json:"count"`
}

// MistakeFrequency aggregates how often a student's submissions matched each
// catalogued mistake pattern, most frequent first.
func (s *Store) MistakeFrequency(ctx context.Context, studentID uuid.UUID) ([]MistakeCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cm.id, cm.pattern_name, COUNT(*) AS hits
		 FROM answer_submissions a JOIN common_mistakes cm ON cm.id = a.mistake_pattern_id
		 WHERE a.student_id=$1 GROUP BY cm.id, cm.pattern_name
		 ORDER BY hits DESC, cm.pattern_name`,
		studentID)
	if err != nil {
		return nil, fmt.Errorf("mistake frequency: %w", err)
	}
	defer rows.Close()

	var out []MistakeCount
	for rows.Next() {
		var mc MistakeCount
		if err := rows.Scan(&mc.MistakeID, &mc.PatternName, &mc.Count); err != nil {
			return nil, err
		}
		out = append(out, mc)
	}
	return out, rows.Err()
}

// StudentPerformance summarizes a student's completed sessions.
type StudentPerformance struct {
	StudentID       uuid.UUID `json:"student_id"`
	SessionCount    int       `json:"session_count"`
	AverageScore    float64   `json:"average_score"`
	AverageAccuracy float64   `json:"average_accuracy"`
}

// PerformanceSummary aggregates a student's completed practice sessions.
// A student with no completed sessions yields zeroed aggregates, not an
// error.
func (s *Store) PerformanceSummary(ctx context.Context, studentID uuid.UUID) (*StudentPerformance, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(total_score), 0), COALESCE(AVG(accuracy), 0)
		 FROM practice_sessions WHERE student_id=$1 AND completed`,
		studentID)

	perf := &StudentPerformance{StudentID: studentID}
	if err := row.Scan(&perf.SessionCount, &perf.AverageScore, &perf.AverageAccuracy); err != nil {
		return nil, fmt.Errorf("performance summary: %w", err)
	}
	return perf, nil
}

// ClassPerformance aggregates completed sessions across a class roster.
func (s *Store) ClassPerformance(ctx context.Context, classID uuid.UUID) ([]StudentPerformance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT uc.user_id, COUNT(ps.id), COALESCE(AVG(ps.total_score), 0), COALESCE(AVG(ps.accuracy), 0)
		 FROM user_classes uc
		 LEFT JOIN practice_sessions ps ON ps.student_id = uc.user_id AND ps.completed
		 WHERE uc.class_id=$1 GROUP BY uc.user_id ORDER BY uc.user_id`,
		classID)
	if err != nil {
		return nil, fmt.Errorf("class performance: %w", err)
	}
	defer rows.Close()

	var out []StudentPerformance
	for rows.Next() {
		var perf StudentPerformance
		if err := rows.Scan(&perf.StudentID, &perf.SessionCount, &perf.AverageScore, &perf.AverageAccuracy); err != nil {
			return nil, err
		}
		out = append(out, perf)
	}
	return out, rows.Err()
}
