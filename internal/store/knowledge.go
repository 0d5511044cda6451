package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/pkg/types"
)

// CreateTextbook inserts an uploaded textbook record.
func (s *Store) CreateTextbook(ctx context.Context, t *types.Textbook) error {
	data, err := marshalJSON(t.ExtractedData)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO textbooks (id, title, author, publisher, subject, grade_level, file_path, file_type, extraction_status, extracted_data, created_at, processed_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		t.ID, t.Title, nullString(t.Author), nullString(t.Publisher), t.Subject,
		nullString(t.GradeLevel), nullString(t.FilePath), nullString(t.FileType),
		t.ExtractionStatus, data, t.CreatedAt, t.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("create textbook: %w", err)
	}
	return nil
}

// GetTextbook fetches a textbook by id.
func (s *Store) GetTextbook(ctx context.Context, id uuid.UUID) (*types.Textbook, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, author, publisher, subject, grade_level, file_path, file_type, extraction_status, extracted_data, created_at, processed_at
		 FROM textbooks WHERE id=$1`, id)

	t := &types.Textbook{}
	var author, publisher, gradeLevel, filePath, fileType sql.NullString
	var data []byte
	err := row.Scan(&t.ID, &t.Title, &author, &publisher, &t.Subject, &gradeLevel,
		&filePath, &fileType, &t.ExtractionStatus, &data, &t.CreatedAt, &t.ProcessedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eduerrors.NewNotFoundError(component, "textbook not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get textbook: %w", err)
	}
	t.Author = author.String
	t.Publisher = publisher.String
	t.GradeLevel = gradeLevel.String
	t.FilePath = filePath.String
	t.FileType = fileType.String
	if err := unmarshalJSON(data, &t.ExtractedData); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateTextbookStatus moves a textbook through its extraction lifecycle.
// Completed and failed transitions stamp processed_at.
func (s *Store) UpdateTextbookStatus(ctx context.Context, id uuid.UUID, status types.ExtractionStatus, extractedData map[string]any) error {
	data, err := marshalJSON(extractedData)
	if err != nil {
		return err
	}
	var processedAt *time.Time
	if status == types.ExtractionCompleted || status == types.ExtractionFailed {
		now := time.Now().UTC()
		processedAt = &now
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE textbooks SET extraction_status=$2, extracted_data=COALESCE($3, extracted_data), processed_at=COALESCE($4, processed_at) WHERE id=$1`,
		id, status, data, processedAt,
	)
	if err != nil {
		return fmt.Errorf("update textbook status: %w", err)
	}
	return requireRow(res, "textbook not found")
}

// SaveExtractionResult persists knowledge points together with their ability
// targets and common mistakes as one transaction. A failure rolls back the
// whole batch.
func (s *Store) SaveExtractionResult(ctx context.Context, points []types.KnowledgePoint, targets []types.AbilityTarget, mistakes []types.CommonMistake) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin extraction tx: %w", err)
	}
	defer tx.Rollback()

	for _, kp := range points {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO knowledge_points (id, textbook_id, name, description, chapter, section, subject, cognitive_level, importance_score, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			kp.ID, kp.TextbookID, kp.Name, nullString(kp.Description), nullString(kp.Chapter),
			nullString(kp.Section), nullString(string(kp.Subject)), nullString(string(kp.CognitiveLevel)),
			kp.ImportanceScore, kp.CreatedAt,
		); err != nil {
			return fmt.Errorf("save knowledge point: %w", err)
		}
	}
	for _, at := range targets {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ability_targets (id, knowledge_point_id, cognitive_level, description, created_at) VALUES ($1,$2,$3,$4,$5)`,
			at.ID, at.KnowledgePointID, at.CognitiveLevel, nullString(at.Description), at.CreatedAt,
		); err != nil {
			return fmt.Errorf("save ability target: %w", err)
		}
	}
	for _, cm := range mistakes {
		examples, err := marshalJSON(cm.Examples)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO common_mistakes (id, knowledge_point_id, pattern_name, description, frequency, severity, examples, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			cm.ID, cm.KnowledgePointID, cm.PatternName, nullString(cm.Description),
			cm.Frequency, cm.Severity, examples, cm.CreatedAt,
		); err != nil {
			return fmt.Errorf("save common mistake: %w", err)
		}
	}

	return tx.Commit()
}

const knowledgePointColumns = `id, textbook_id, name, description, chapter, section, subject, cognitive_level, importance_score, created_at`

// ListKnowledgePoints returns knowledge points scoped by textbook and/or an
// explicit id set. Both nil means every row. It satisfies the knowledge
// source interface the retrieval strategies consume.
func (s *Store) ListKnowledgePoints(ctx context.Context, textbookID *uuid.UUID, ids []uuid.UUID) ([]types.KnowledgePoint, error) {
	query := `SELECT ` + knowledgePointColumns + ` FROM knowledge_points`
	var args []any
	var where []string
	if textbookID != nil {
		args = append(args, *textbookID)
		where = append(where, fmt.Sprintf("textbook_id=$%d", len(args)))
	}
	if len(ids) > 0 {
		placeholders := make([]string, len(ids))
		for i, id := range ids {
			args = append(args, id)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		where = append(where, "id IN ("+strings.Join(placeholders, ",")+")")
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list knowledge points: %w", err)
	}
	defer rows.Close()

	var out []types.KnowledgePoint
	for rows.Next() {
		kp, err := scanKnowledgePoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, kp)
	}
	return out, rows.Err()
}

// GetKnowledgePoint fetches one knowledge point.
func (s *Store) GetKnowledgePoint(ctx context.Context, id uuid.UUID) (*types.KnowledgePoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+knowledgePointColumns+` FROM knowledge_points WHERE id=$1`, id)
	if err != nil {
		return nil, fmt.Errorf("get knowledge point: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, eduerrors.NewNotFoundError(component, "knowledge point not found")
	}
	kp, err := scanKnowledgePoint(rows)
	if err != nil {
		return nil, err
	}
	return &kp, nil
}

func scanKnowledgePoint(rows *sql.Rows) (types.KnowledgePoint, error) {
	var kp types.KnowledgePoint
	var description, chapter, section, subject, cognitiveLevel sql.NullString
	err := rows.Scan(&kp.ID, &kp.TextbookID, &kp.Name, &description, &chapter,
		&section, &subject, &cognitiveLevel, &kp.ImportanceScore, &kp.CreatedAt)
	if err != nil {
		return kp, fmt.Errorf("scan knowledge point: %w", err)
	}
	kp.Description = description.String
	kp.Chapter = chapter.String
	kp.Section = section.String
	kp.Subject = types.SubjectArea(subject.String)
	kp.CognitiveLevel = types.CognitiveLevel(cognitiveLevel.String)
	return kp, nil
}

// ListAbilityTargets returns the targets of one knowledge point.
func (s *Store) ListAbilityTargets(ctx context.Context, knowledgePointID uuid.UUID) ([]types.AbilityTarget, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, knowledge_point_id, cognitive_level, description, created_at
		 FROM ability_targets WHERE knowledge_point_id=$1 ORDER BY cognitive_level`,
		knowledgePointID)
	if err != nil {
		return nil, fmt.Errorf("list ability targets: %w", err)
	}
	defer rows.Close()

	var out []types.AbilityTarget
	for rows.Next() {
		var at types.AbilityTarget
		var description sql.NullString
		if err := rows.Scan(&at.ID, &at.KnowledgePointID, &at.CognitiveLevel, &description, &at.CreatedAt); err != nil {
			return nil, err
		}
		at.Description = description.String
		out = append(out, at)
	}
	return out, rows.Err()
}

// ListCommonMistakes returns the mistake patterns of one knowledge point.
func (s *Store) ListCommonMistakes(ctx context.Context, knowledgePointID uuid.UUID) ([]types.CommonMistake, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, knowledge_point_id, pattern_name, description, frequency, severity, examples, created_at
		 FROM common_mistakes WHERE knowledge_point_id=$1 ORDER BY frequency DESC, pattern_name`,
		knowledgePointID)
	if err != nil {
		return nil, fmt.Errorf("list common mistakes: %w", err)
	}
	defer rows.Close()

	var out []types.CommonMistake
	for rows.Next() {
		var cm types.CommonMistake
		var description sql.NullString
		var examples []byte
		if err := rows.Scan(&cm.ID, &cm.KnowledgePointID, &cm.PatternName, &description,
			&cm.Frequency, &cm.Severity, &examples, &cm.CreatedAt); err != nil {
			return nil, err
		}
		cm.Description = description.String
		if err := unmarshalJSON(examples, &cm.Examples); err != nil {
			return nil, err
		}
		out = append(out, cm)
	}
	return out, rows.Err()
}
