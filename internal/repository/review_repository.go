package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/robolearn/learning-backend/internal/models"
	"github.com/robolearn/learning-backend/internal/repository/common"
)

var ErrReviewNotFound = errors.New("review not found")

type ReviewRepository struct {
	db *sqlx.DB
}

func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// CreateTx создаёт отзыв внутри транзакции. Метрики курса
// пересчитываются в той же транзакции вызывающей стороной.
func (r *ReviewRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, review *models.CourseReview) error {
	query := `
		INSERT INTO course_reviews (course_id, user_id, rating, comment)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	if err := tx.QueryRowxContext(ctx, query,
		review.CourseID, review.UserID, review.Rating, review.Comment,
	).Scan(&review.ID, &review.CreatedAt, &review.UpdatedAt); err != nil {
		return fmt.Errorf("review repository: create %w", err)
	}
	return nil
}

// GetByID возвращает отзыв по ID.
func (r *ReviewRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.CourseReview, error) {
	return common.GetByID[models.CourseReview](ctx, r.db, "course_reviews", id, ErrReviewNotFound)
}

// GetByCourseAndUser проверяет, оставлял ли пользователь отзыв о курсе.
func (r *ReviewRepository) GetByCourseAndUser(ctx context.Context, courseID, userID uuid.UUID) (*models.CourseReview, error) {
	var review models.CourseReview
	err := r.db.GetContext(ctx, &review, `SELECT * FROM course_reviews WHERE course_id = $1 AND user_id = $2`, courseID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &review, nil
}

// ListByCourseID возвращает отзывы о курсе.
func (r *ReviewRepository) ListByCourseID(ctx context.Context, courseID uuid.UUID, limit, offset int) ([]models.CourseReview, error) {
	var reviews []models.CourseReview
	err := r.db.SelectContext(ctx, &reviews, `
		SELECT * FROM course_reviews WHERE course_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, courseID, limit, offset)
	return reviews, err
}

// UpdateTx обновляет отзыв внутри транзакции.
func (r *ReviewRepository) UpdateTx(ctx context.Context, tx *sqlx.Tx, review *models.CourseReview) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE course_reviews SET rating = $2, comment = $3, updated_at = NOW() WHERE id = $1
	`, review.ID, review.Rating, review.Comment)
	return err
}

// DeleteTx удаляет отзыв внутри транзакции.
func (r *ReviewRepository) DeleteTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM course_reviews WHERE id = $1`, id)
	return err
}
