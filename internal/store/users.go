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

const userColumns = `id, username, email, password_hash, role, grade_level, subject_interests, is_active, created_at, last_login`

// CreateUser inserts a new account.
func (s *Store) CreateUser(ctx context.Context, u *types.User) error {
	interests, err := marshalJSON(u.SubjectInterests)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.Role, nullString(u.GradeLevel),
		interests, u.IsActive, u.CreatedAt, u.LastLogin,
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUser fetches an account by id.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*types.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

// GetUserByUsername fetches an account by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*types.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username=$1`, username))
}

func (s *Store) scanUser(row *sql.Row) (*types.User, error) {
	u := &types.User{}
	var gradeLevel sql.NullString
	var interests []byte
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role,
		&gradeLevel, &interests, &u.IsActive, &u.CreatedAt, &u.LastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eduerrors.NewNotFoundError(component, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.GradeLevel = gradeLevel.String
	if err := unmarshalJSON(interests, &u.SubjectInterests); err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateUser overwrites mutable profile fields.
func (s *Store) UpdateUser(ctx context.Context, u *types.User) error {
	interests, err := marshalJSON(u.SubjectInterests)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET email=$2, password_hash=$3, grade_level=$4, subject_interests=$5, is_active=$6, last_login=$7 WHERE id=$1`,
		u.ID, u.Email, u.PasswordHash, nullString(u.GradeLevel), interests, u.IsActive, u.LastLogin,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return requireRow(res, "user not found")
}

// CreateClass inserts a class.
func (s *Store) CreateClass(ctx context.Context, c *types.Class) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO classes (id, name, description, grade_level, subject, teacher_id, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		c.ID, c.Name, nullString(c.Description), nullString(c.GradeLevel),
		nullString(string(c.Subject)), c.TeacherID, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// AddUserToClass enrolls a user; re-enrollment is a no-op.
func (s *Store) AddUserToClass(ctx context.Context, userID, classID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_classes (user_id, class_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`,
		userID, classID,
	)
	if err != nil {
		return fmt.Errorf("enroll user: %w", err)
	}
	return nil
}

// ListClassStudents returns the student ids enrolled in a class.
func (s *Store) ListClassStudents(ctx context.Context, classID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT uc.user_id FROM user_classes uc JOIN users u ON u.id = uc.user_id
		 WHERE uc.class_id=$1 AND u.role=$2 ORDER BY uc.user_id`,
		classID, types.RoleStudent,
	)
	if err != nil {
		return nil, fmt.Errorf("list class students: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func requireRow(res sql.Result, message string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return eduerrors.NewNotFoundError(component, message)
	}
	return nil
}
