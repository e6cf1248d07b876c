package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/robolearn/learning-backend/internal/models"
)

// ErrCourseNotFound возвращается, когда курс не найден.
var ErrCourseNotFound = errors.New("course not found")

// ErrModuleNotFound возвращается, когда модуль курса не найден.
var ErrModuleNotFound = errors.New("course module not found")

// CourseFilter задаёт параметры поиска по каталогу курсов.
type CourseFilter struct {
	CategoryID *uuid.UUID
	Difficulty string
	Search     string
	Limit      int
	Offset     int
}

// CatalogRepository отвечает за категории, курсы и модули курсов.
type CatalogRepository struct {
	db *sqlx.DB
}

func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ListCategories возвращает все активные категории.
func (r *CatalogRepository) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := r.db.SelectContext(ctx, &categories, `
		SELECT id, slug, name, description, icon, sort_order, is_active, created_at
		FROM categories WHERE is_active = TRUE ORDER BY sort_order, name
	`)
	return categories, err
}

// GetCategoryBySlug возвращает категорию по slug.
func (r *CatalogRepository) GetCategoryBySlug(ctx context.Context, slug string) (*models.Category, error) {
	var category models.Category
	err := r.db.GetContext(ctx, &category, `
		SELECT id, slug, name, description, icon, sort_order, is_active, created_at
		FROM categories WHERE slug = $1 AND is_active = TRUE
	`, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCourseNotFound
		}
		return nil, err
	}
	return &category, nil
}

// ListCourses возвращает опубликованные курсы с учётом фильтра.
func (r *CatalogRepository) ListCourses(ctx context.Context, filter CourseFilter) ([]models.Course, error) {
	query := `
		SELECT id, slug, title, description, category_id, difficulty, duration_hours,
			thumbnail_id, rating, students_count, is_published, created_at, updated_at
		FROM courses
		WHERE is_published = TRUE
	`
	args := make([]interface{}, 0, 5)
	idx := 1

	if filter.CategoryID != nil {
		query += fmt.Sprintf(" AND category_id = $%d", idx)
		args = append(args, *filter.CategoryID)
		idx++
	}

	if filter.Difficulty != "" {
		query += fmt.Sprintf(" AND difficulty = $%d", idx)
		args = append(args, filter.Difficulty)
		idx++
	}

	if filter.Search != "" {
		query += fmt.Sprintf(" AND (title ILIKE $%d OR description ILIKE $%d)", idx, idx)
		args = append(args, "%"+strings.TrimSpace(filter.Search)+"%")
		idx++
	}

	query += fmt.Sprintf(" ORDER BY students_count DESC, created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, filter.Limit, filter.Offset)

	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, fmt.Errorf("catalog repository: list courses %w", err)
	}
	return courses, nil
}

// GetCourseByID возвращает курс по идентификатору.
func (r *CatalogRepository) GetCourseByID(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	var course models.Course
	err := r.db.GetContext(ctx, &course, `
		SELECT id, slug, title, description, category_id, difficulty, duration_hours,
			thumbnail_id, rating, students_count, is_published, created_at, updated_at
		FROM courses WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("catalog repository: get course by id %w", err)
	}
	return &course, nil
}

// GetCourseBySlug возвращает опубликованный курс по slug.
func (r *CatalogRepository) GetCourseBySlug(ctx context.Context, slug string) (*models.Course, error) {
	var course models.Course
	err := r.db.GetContext(ctx, &course, `
		SELECT id, slug, title, description, category_id, difficulty, duration_hours,
			thumbnail_id, rating, students_count, is_published, created_at, updated_at
		FROM courses WHERE slug = $1 AND is_published = TRUE
	`, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("catalog repository: get course by slug %w", err)
	}
	return &course, nil
}

// ListModules возвращает модули курса в порядке прохождения.
func (r *CatalogRepository) ListModules(ctx context.Context, courseID uuid.UUID) ([]models.CourseModule, error) {
	var modules []models.CourseModule
	err := r.db.SelectContext(ctx, &modules, `
		SELECT id, course_id, title, module_type, content, duration_minutes, sort_order, created_at
		FROM course_modules WHERE course_id = $1 ORDER BY sort_order
	`, courseID)
	if err != nil {
		return nil, fmt.Errorf("catalog repository: list modules %w", err)
	}
	return modules, nil
}

// GetModuleByID возвращает модуль по идентификатору.
func (r *CatalogRepository) GetModuleByID(ctx context.Context, id uuid.UUID) (*models.CourseModule, error) {
	var module models.CourseModule
	err := r.db.GetContext(ctx, &module, `
		SELECT id, course_id, title, module_type, content, duration_minutes, sort_order, created_at
		FROM course_modules WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrModuleNotFound
		}
		return nil, fmt.Errorf("catalog repository: get module by id %w", err)
	}
	return &module, nil
}

// CountModules возвращает число модулей в курсе.
func (r *CatalogRepository) CountModules(ctx context.Context, courseID uuid.UUID) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM course_modules WHERE course_id = $1`, courseID); err != nil {
		return 0, fmt.Errorf("catalog repository: count modules %w", err)
	}
	return count, nil
}

// UpdateCourseMetricsTx пересчитывает рейтинг и число студентов курса
// внутри транзакции. Вызывается после изменения отзывов или записей.
func (r *CatalogRepository) UpdateCourseMetricsTx(ctx context.Context, tx *sqlx.Tx, courseID uuid.UUID) error {
	query := `
		UPDATE courses SET
			rating = COALESCE((SELECT AVG(rating)::numeric(3,2) FROM course_reviews WHERE course_id = $1), 0),
			students_count = (SELECT COUNT(*) FROM course_enrollments WHERE course_id = $1 AND status <> 'dropped'),
			updated_at = NOW()
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, query, courseID); err != nil {
		return fmt.Errorf("catalog repository: update course metrics %w", err)
	}
	return nil
}
