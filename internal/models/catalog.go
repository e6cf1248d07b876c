package models

import (
	"time"

	"github.com/google/uuid"
)

// Category представляет категорию курсов.
type Category struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Slug        string    `db:"slug" json:"slug"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	Icon        *string   `db:"icon" json:"icon,omitempty"`
	SortOrder   int       `db:"sort_order" json:"sort_order"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Course представляет курс платформы.
type Course struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	Slug          string     `db:"slug" json:"slug"`
	Title         string     `db:"title" json:"title"`
	Description   string     `db:"description" json:"description"`
	CategoryID    *uuid.UUID `db:"category_id" json:"category_id,omitempty"`
	Difficulty    string     `db:"difficulty" json:"difficulty"`
	DurationHours int        `db:"duration_hours" json:"duration_hours"`
	ThumbnailID   *uuid.UUID `db:"thumbnail_id" json:"thumbnail_id,omitempty"`
	Rating        float64    `db:"rating" json:"rating"`
	StudentsCount int        `db:"students_count" json:"students_count"`
	IsPublished   bool       `db:"is_published" json:"is_published"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// CourseModule представляет модуль внутри курса.
type CourseModule struct {
	ID              uuid.UUID `db:"id" json:"id"`
	CourseID        uuid.UUID `db:"course_id" json:"course_id"`
	Title           string    `db:"title" json:"title"`
	ModuleType      string    `db:"module_type" json:"module_type"`
	Content         *string   `db:"content" json:"content,omitempty"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	SortOrder       int       `db:"sort_order" json:"sort_order"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// CourseEnrollment представляет запись студента на курс.
type CourseEnrollment struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	UserID      uuid.UUID  `db:"user_id" json:"user_id"`
	CourseID    uuid.UUID  `db:"course_id" json:"course_id"`
	Status      string     `db:"status" json:"status"`
	Progress    float64    `db:"progress" json:"progress"`
	EnrolledAt  time.Time  `db:"enrolled_at" json:"enrolled_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// ModuleProgress отражает прохождение отдельного модуля в рамках записи на курс.
type ModuleProgress struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	EnrollmentID uuid.UUID  `db:"enrollment_id" json:"enrollment_id"`
	ModuleID     uuid.UUID  `db:"module_id" json:"module_id"`
	IsCompleted  bool       `db:"is_completed" json:"is_completed"`
	QuizScore    *float64   `db:"quiz_score" json:"quiz_score,omitempty"`
	CompletedAt  *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// CourseReview описывает отзыв студента о курсе.
type CourseReview struct {
	ID        uuid.UUID `db:"id" json:"id"`
	CourseID  uuid.UUID `db:"course_id" json:"course_id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Rating    int       `db:"rating" json:"rating"`
	Comment   *string   `db:"comment" json:"comment,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
