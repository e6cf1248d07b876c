package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/robolearn/learning-backend/internal/models"
)

// ErrEnrollmentNotFound возвращается, когда запись на курс не найдена.
var ErrEnrollmentNotFound = errors.New("enrollment not found")

// ErrAlreadyEnrolled возвращается при повторной записи на курс.
var ErrAlreadyEnrolled = errors.New("already enrolled")

const enrollmentColumns = `id, user_id, course_id, status, progress, enrolled_at, completed_at`

// EnrollmentRepository отвечает за записи на курсы и прогресс по модулям.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository создаёт экземпляр репозитория.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// CreateTx создаёт запись на курс внутри транзакции.
func (r *EnrollmentRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, enrollment *models.CourseEnrollment) error {
	query := `
		INSERT INTO course_enrollments (user_id, course_id, status, progress)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, course_id) DO NOTHING
		RETURNING id, enrolled_at
	`

	err := tx.QueryRowxContext(ctx, query,
		enrollment.UserID, enrollment.CourseID, enrollment.Status, enrollment.Progress,
	).Scan(&enrollment.ID, &enrollment.EnrolledAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrAlreadyEnrolled
		}
		return fmt.Errorf("enrollment repository: create %w", err)
	}

	return nil
}

// GetByUserAndCourse возвращает запись пользователя на курс.
func (r *EnrollmentRepository) GetByUserAndCourse(ctx context.Context, userID, courseID uuid.UUID) (*models.CourseEnrollment, error) {
	var enrollment models.CourseEnrollment
	query := `SELECT ` + enrollmentColumns + ` FROM course_enrollments WHERE user_id = $1 AND course_id = $2`
	if err := r.db.GetContext(ctx, &enrollment, query, userID, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("enrollment repository: get by user and course %w", err)
	}

	return &enrollment, nil
}

// GetForUpdateTx возвращает запись на курс с блокировкой строки.
func (r *EnrollmentRepository) GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, userID, courseID uuid.UUID) (*models.CourseEnrollment, error) {
	var enrollment models.CourseEnrollment
	query := `SELECT ` + enrollmentColumns + ` FROM course_enrollments WHERE user_id = $1 AND course_id = $2 FOR UPDATE`
	if err := tx.GetContext(ctx, &enrollment, query, userID, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("enrollment repository: get for update %w", err)
	}

	return &enrollment, nil
}

// ListByUser возвращает записи пользователя на курсы.
func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID uuid.UUID, status string) ([]models.CourseEnrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM course_enrollments WHERE user_id = $1`
	args := []interface{}{userID}

	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY enrolled_at DESC`

	var enrollments []models.CourseEnrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, fmt.Errorf("enrollment repository: list by user %w", err)
	}

	return enrollments, nil
}

// UpdateStatusTx обновляет статус и прогресс записи внутри транзакции.
func (r *EnrollmentRepository) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status string, progress float64, completed bool) error {
	query := `UPDATE course_enrollments SET status = $2, progress = $3 WHERE id = $1`
	if completed {
		query = `UPDATE course_enrollments SET status = $2, progress = $3, completed_at = NOW() WHERE id = $1`
	}

	if _, err := tx.ExecContext(ctx, query, id, status, progress); err != nil {
		return fmt.Errorf("enrollment repository: update status %w", err)
	}

	return nil
}

// UpsertModuleProgressTx отмечает модуль пройденным внутри транзакции.
// Возвращает true, если модуль был завершён впервые.
func (r *EnrollmentRepository) UpsertModuleProgressTx(ctx context.Context, tx *sqlx.Tx, progress *models.ModuleProgress) (bool, error) {
	query := `
		INSERT INTO module_progress (enrollment_id, module_id, is_completed, quiz_score, completed_at)
		VALUES ($1, $2, $3, $4, CASE WHEN $3 THEN NOW() ELSE NULL END)
		ON CONFLICT (enrollment_id, module_id) DO UPDATE
		SET is_completed = EXCLUDED.is_completed,
			quiz_score = COALESCE(EXCLUDED.quiz_score, module_progress.quiz_score),
			completed_at = CASE
				WHEN module_progress.completed_at IS NOT NULL THEN module_progress.completed_at
				WHEN EXCLUDED.is_completed THEN NOW()
				ELSE NULL
			END
		RETURNING id, (xmax = 0) AS inserted, completed_at
	`

	var inserted bool
	if err := tx.QueryRowxContext(ctx, query,
		progress.EnrollmentID, progress.ModuleID, progress.IsCompleted, progress.QuizScore,
	).Scan(&progress.ID, &inserted, &progress.CompletedAt); err != nil {
		return false, fmt.Errorf("enrollment repository: upsert module progress %w", err)
	}

	return inserted, nil
}

// GetModuleProgressTx возвращает прогресс по модулю с блокировкой строки.
func (r *EnrollmentRepository) GetModuleProgressTx(ctx context.Context, tx *sqlx.Tx, enrollmentID, moduleID uuid.UUID) (*models.ModuleProgress, error) {
	var progress models.ModuleProgress
	query := `
		SELECT id, enrollment_id, module_id, is_completed, quiz_score, completed_at
		FROM module_progress
		WHERE enrollment_id = $1 AND module_id = $2
		FOR UPDATE
	`
	if err := tx.GetContext(ctx, &progress, query, enrollmentID, moduleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("enrollment repository: get module progress %w", err)
	}

	return &progress, nil
}

// ListModuleProgress возвращает прогресс по всем модулям записи.
func (r *EnrollmentRepository) ListModuleProgress(ctx context.Context, enrollmentID uuid.UUID) ([]models.ModuleProgress, error) {
	var items []models.ModuleProgress
	err := r.db.SelectContext(ctx, &items, `
		SELECT id, enrollment_id, module_id, is_completed, quiz_score, completed_at
		FROM module_progress WHERE enrollment_id = $1
	`, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("enrollment repository: list module progress %w", err)
	}

	return items, nil
}

// CountCompletedModulesTx возвращает число завершённых модулей записи внутри транзакции.
func (r *EnrollmentRepository) CountCompletedModulesTx(ctx context.Context, tx *sqlx.Tx, enrollmentID uuid.UUID) (int, error) {
	var count int
	err := tx.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM module_progress WHERE enrollment_id = $1 AND is_completed = TRUE`,
		enrollmentID,
	)
	if err != nil {
		return 0, fmt.Errorf("enrollment repository: count completed modules %w", err)
	}

	return count, nil
}
