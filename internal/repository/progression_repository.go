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

// ProgressionRepository отвечает за значки, журнал активности
// и запуски симуляций.
type ProgressionRepository struct {
	db *sqlx.DB
}

// NewProgressionRepository создаёт экземпляр репозитория.
func NewProgressionRepository(db *sqlx.DB) *ProgressionRepository {
	return &ProgressionRepository{db: db}
}

// ListActiveBadges возвращает активные значки в устойчивом порядке
// по строковому badge_id. Порядок важен: бонусные баллы за значок
// начисляются до проверки следующего.
func (r *ProgressionRepository) ListActiveBadges(ctx context.Context) ([]models.Badge, error) {
	var badges []models.Badge
	err := r.db.SelectContext(ctx, &badges, `
		SELECT id, badge_id, name, description, icon,
			condition_type, condition_key, condition_value, is_active, created_at
		FROM badges WHERE is_active = TRUE ORDER BY badge_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("progression repository: list active badges %w", err)
	}
	return badges, nil
}

// ListEarnedBadgeIDs возвращает множество строковых badge_id,
// уже полученных пользователем.
func (r *ProgressionRepository) ListEarnedBadgeIDs(ctx context.Context, userID uuid.UUID) (map[string]struct{}, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		SELECT b.badge_id
		FROM student_badges sb
		JOIN badges b ON b.id = sb.badge_id
		WHERE sb.user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("progression repository: list earned badge ids %w", err)
	}

	earned := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		earned[id] = struct{}{}
	}
	return earned, nil
}

// ListEarnedBadges возвращает значки пользователя с датами получения.
func (r *ProgressionRepository) ListEarnedBadges(ctx context.Context, userID uuid.UUID) ([]models.EarnedBadge, error) {
	var badges []models.EarnedBadge
	err := r.db.SelectContext(ctx, &badges, `
		SELECT b.id, b.badge_id, b.name, b.description, b.icon,
			b.condition_type, b.condition_key, b.condition_value, b.is_active, b.created_at, sb.earned_at
		FROM student_badges sb
		JOIN badges b ON b.id = sb.badge_id
		WHERE sb.user_id = $1
		ORDER BY sb.earned_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("progression repository: list earned badges %w", err)
	}
	return badges, nil
}

// AwardBadgeTx присваивает значок пользователю внутри транзакции.
// Повторное присвоение не ошибка: возвращается false.
func (r *ProgressionRepository) AwardBadgeTx(ctx context.Context, tx *sqlx.Tx, userID, badgeID uuid.UUID) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		INSERT INTO student_badges (user_id, badge_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, badge_id) DO NOTHING
	`, userID, badgeID)
	if err != nil {
		return false, fmt.Errorf("progression repository: award badge %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("progression repository: award badge rows affected %w", err)
	}

	return rows > 0, nil
}

// CreateActivityTx добавляет запись в журнал активности внутри транзакции.
func (r *ProgressionRepository) CreateActivityTx(ctx context.Context, tx *sqlx.Tx, activity *models.StudentActivity) error {
	query := `
		INSERT INTO student_activities (user_id, activity_type, description, points_earned, metadata)
		VALUES ($1, $2, $3, $4, $5::jsonb)
		RETURNING id, created_at
	`

	if err := tx.QueryRowxContext(ctx, query,
		activity.UserID, activity.ActivityType, activity.Description,
		activity.PointsEarned, activity.Metadata,
	).Scan(&activity.ID, &activity.CreatedAt); err != nil {
		return fmt.Errorf("progression repository: create activity %w", err)
	}

	return nil
}

// ListActivities возвращает последние записи журнала активности.
func (r *ProgressionRepository) ListActivities(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.StudentActivity, error) {
	var activities []models.StudentActivity
	err := r.db.SelectContext(ctx, &activities, `
		SELECT id, user_id, activity_type, description, points_earned, metadata, created_at
		FROM student_activities
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("progression repository: list activities %w", err)
	}
	return activities, nil
}

// CreateSimulationRun сохраняет запуск симуляции.
func (r *ProgressionRepository) CreateSimulationRun(ctx context.Context, run *models.SimulationRun) error {
	query := `
		INSERT INTO simulation_runs (user_id, category, simulation_name, duration_seconds)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	if err := r.db.QueryRowxContext(ctx, query,
		run.UserID, run.Category, run.SimulationName, run.DurationSeconds,
	).Scan(&run.ID, &run.CreatedAt); err != nil {
		return fmt.Errorf("progression repository: create simulation run %w", err)
	}

	return nil
}

// GetStatsSnapshot собирает агрегированную статистику пользователя.
// Снимок всегда вычисляется заново по текущему состоянию таблиц.
func (r *ProgressionRepository) GetStatsSnapshot(ctx context.Context, userID uuid.UUID) (*models.StatsSnapshot, error) {
	var snapshot models.StatsSnapshot

	query := `
		SELECT
			u.total_points,
			u.level,
			(SELECT COUNT(*) FROM course_enrollments ce WHERE ce.user_id = u.id AND ce.status <> 'dropped') AS enrolled_courses,
			(SELECT COUNT(*) FROM course_enrollments ce WHERE ce.user_id = u.id AND ce.status = 'completed') AS completed_courses,
			(SELECT COUNT(*) FROM module_progress mp
				JOIN course_enrollments ce ON ce.id = mp.enrollment_id
				WHERE ce.user_id = u.id AND mp.is_completed = TRUE) AS completed_modules,
			(SELECT COUNT(*) FROM simulation_runs sr WHERE sr.user_id = u.id) AS simulation_runs,
			(SELECT COUNT(*) FROM student_badges sb WHERE sb.user_id = u.id) AS badges_earned,
			(SELECT COUNT(*) FROM student_activities sa WHERE sa.user_id = u.id AND sa.created_at >= NOW() - INTERVAL '7 days') AS activities_this_week
		FROM users u
		WHERE u.id = $1
	`

	row := r.db.QueryRowxContext(ctx, query, userID)
	if err := row.Scan(
		&snapshot.TotalPoints,
		&snapshot.Level,
		&snapshot.EnrolledCourses,
		&snapshot.CompletedCourses,
		&snapshot.CompletedModules,
		&snapshot.SimulationRuns,
		&snapshot.BadgesEarned,
		&snapshot.ActivitiesThisWeek,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("progression repository: get stats snapshot %w", err)
	}

	byType, err := r.simulationsByType(ctx, userID)
	if err != nil {
		return nil, err
	}
	snapshot.SimulationsByType = byType

	maxima, err := r.metadataMaxima(ctx, userID)
	if err != nil {
		return nil, err
	}
	snapshot.MetadataMax = maxima
	snapshot.MaxLinesOfCode = maxima["lines_of_code"]

	return &snapshot, nil
}

// metadataMaxima возвращает максимум каждого числового ключа metadata
// в журнале активности. По этим значениям вычисляются условия значков
// вида metadata_max_at_least.
func (r *ProgressionRepository) metadataMaxima(ctx context.Context, userID uuid.UUID) (map[string]int, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT m.key, MAX(m.value::int)
		FROM student_activities sa, jsonb_each_text(sa.metadata) AS m
		WHERE sa.user_id = $1 AND m.value ~ '^[0-9]+$'
		GROUP BY m.key
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("progression repository: metadata maxima %w", err)
	}
	defer rows.Close()

	maxima := make(map[string]int)
	for rows.Next() {
		var key string
		var max int
		if err := rows.Scan(&key, &max); err != nil {
			return nil, fmt.Errorf("progression repository: metadata maxima scan %w", err)
		}
		maxima[key] = max
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("progression repository: metadata maxima rows %w", err)
	}

	return maxima, nil
}

// simulationsByType возвращает число запусков симуляций по категориям.
func (r *ProgressionRepository) simulationsByType(ctx context.Context, userID uuid.UUID) (map[string]int, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT category, COUNT(*) FROM simulation_runs WHERE user_id = $1 GROUP BY category
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("progression repository: simulations by type %w", err)
	}
	defer rows.Close()

	byType := make(map[string]int)
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("progression repository: simulations by type scan %w", err)
		}
		byType[category] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("progression repository: simulations by type rows %w", err)
	}

	return byType, nil
}
