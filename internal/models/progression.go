package models

import (
	"time"

	"github.com/google/uuid"
)

// Виды условий получения значков. Условие хранится в строке значка
// как (вид, ключ, порог) и вычисляется по снимку статистики.
const (
	BadgeCondCompletedCoursesAtLeast = "completed_courses_at_least"
	BadgeCondCompletedModulesAtLeast = "completed_modules_at_least"
	BadgeCondSimulationRunsAtLeast   = "simulation_runs_at_least"
	BadgeCondSimulationCategoryRan   = "simulation_category_ran"
	BadgeCondPointsAtLeast           = "points_at_least"
	BadgeCondLevelAtLeast            = "level_at_least"
	BadgeCondMetadataMaxAtLeast      = "metadata_max_at_least"
)

// ValidBadgeConditions - известные виды условий.
var ValidBadgeConditions = map[string]struct{}{
	BadgeCondCompletedCoursesAtLeast: {},
	BadgeCondCompletedModulesAtLeast: {},
	BadgeCondSimulationRunsAtLeast:   {},
	BadgeCondSimulationCategoryRan:   {},
	BadgeCondPointsAtLeast:           {},
	BadgeCondLevelAtLeast:            {},
	BadgeCondMetadataMaxAtLeast:      {},
}

// Badge описывает значок, который может получить студент.
type Badge struct {
	ID             uuid.UUID `db:"id" json:"id"`
	BadgeID        string    `db:"badge_id" json:"badge_id"`
	Name           string    `db:"name" json:"name"`
	Description    string    `db:"description" json:"description"`
	Icon           *string   `db:"icon" json:"icon,omitempty"`
	ConditionType  string    `db:"condition_type" json:"condition_type"`
	ConditionKey   *string   `db:"condition_key" json:"condition_key,omitempty"`
	ConditionValue int       `db:"condition_value" json:"condition_value"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// StudentBadge фиксирует факт получения значка студентом.
type StudentBadge struct {
	ID       uuid.UUID `db:"id" json:"id"`
	UserID   uuid.UUID `db:"user_id" json:"user_id"`
	BadgeID  uuid.UUID `db:"badge_id" json:"badge_id"`
	EarnedAt time.Time `db:"earned_at" json:"earned_at"`
}

// EarnedBadge — значок вместе с датой получения, для выдачи в API.
type EarnedBadge struct {
	Badge
	EarnedAt time.Time `db:"earned_at" json:"earned_at"`
}

// StudentActivity представляет запись журнала активности студента.
type StudentActivity struct {
	ID           uuid.UUID `db:"id" json:"id"`
	UserID       uuid.UUID `db:"user_id" json:"user_id"`
	ActivityType string    `db:"activity_type" json:"activity_type"`
	Description  string    `db:"description" json:"description"`
	PointsEarned int       `db:"points_earned" json:"points_earned"`
	Metadata     *string   `db:"metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// SimulationRun фиксирует запуск симуляции студентом.
type SimulationRun struct {
	ID              uuid.UUID `db:"id" json:"id"`
	UserID          uuid.UUID `db:"user_id" json:"user_id"`
	Category        string    `db:"category" json:"category"`
	SimulationName  string    `db:"simulation_name" json:"simulation_name"`
	DurationSeconds int       `db:"duration_seconds" json:"duration_seconds"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// StatsSnapshot содержит агрегированную статистику студента
// на момент вычисления. Используется при проверке условий значков.
type StatsSnapshot struct {
	TotalPoints        int            `json:"total_points"`
	Level              int            `json:"level"`
	EnrolledCourses    int            `json:"enrolled_courses"`
	CompletedCourses   int            `json:"completed_courses"`
	CompletedModules   int            `json:"completed_modules"`
	SimulationRuns     int            `json:"simulation_runs"`
	SimulationsByType  map[string]int `json:"simulations_by_type"`
	BadgesEarned       int            `json:"badges_earned"`
	ActivitiesThisWeek int            `json:"activities_this_week"`
	MaxLinesOfCode     int            `json:"max_lines_of_code"`
	// MetadataMax хранит максимум каждого числового ключа metadata
	// журнала активности (например lines_of_code).
	MetadataMax map[string]int `json:"metadata_max,omitempty"`
}

// DashboardSummary агрегирует данные для главной страницы студента.
type DashboardSummary struct {
	Stats            StatsSnapshot      `json:"stats"`
	RecentActivities []StudentActivity  `json:"recent_activities"`
	Badges           []EarnedBadge      `json:"badges"`
	ActiveCourses    []CourseEnrollment `json:"active_courses"`
}
