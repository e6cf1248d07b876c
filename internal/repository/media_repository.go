package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/google/uuid"

	"github.com/robolearn/learning-backend/internal/models"
	"github.com/robolearn/learning-backend/internal/repository/common"
)

// MediaRepository работает с таблицей media_files.
type MediaRepository struct {
	db *sqlx.DB
}

// NewMediaRepository создаёт экземпляр.
func NewMediaRepository(db *sqlx.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

// ErrMediaNotFound сигнализирует об отсутствии файла.
var ErrMediaNotFound = errors.New("media not found")

// Create сохраняет запись о файле.
func (r *MediaRepository) Create(ctx context.Context, media *models.MediaFile) error {
	query := `
		INSERT INTO media_files (user_id, file_path, file_type, purpose, file_size, is_public)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	if err := r.db.QueryRowxContext(
		ctx,
		query,
		media.UserID,
		media.FilePath,
		media.FileType,
		media.Purpose,
		media.FileSize,
		media.IsPublic,
	).Scan(&media.ID, &media.CreatedAt); err != nil {
		return fmt.Errorf("media repository: create %w", err)
	}

	return nil
}

// GetByID возвращает запись о файле.
func (r *MediaRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.MediaFile, error) {
	return common.GetByID[models.MediaFile](ctx, r.db, "media_files", id, ErrMediaNotFound)
}

// ListByUser возвращает файлы пользователя, опционально по назначению.
func (r *MediaRepository) ListByUser(ctx context.Context, userID uuid.UUID, purpose string) ([]models.MediaFile, error) {
	query := `SELECT * FROM media_files WHERE user_id = $1`
	args := []interface{}{userID}

	if purpose != "" {
		query += ` AND purpose = $2`
		args = append(args, purpose)
	}
	query += ` ORDER BY created_at DESC`

	files := make([]models.MediaFile, 0)
	if err := r.db.SelectContext(ctx, &files, query, args...); err != nil {
		return nil, fmt.Errorf("media repository: list by user %w", err)
	}
	return files, nil
}

// Delete удаляет запись о файле.
func (r *MediaRepository) Delete(ctx context.Context, mediaID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM media_files WHERE id = $1`, mediaID); err != nil {
		return fmt.Errorf("media repository: delete %w", err)
	}
	return nil
}
