package service

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/robolearn/learning-backend/internal/logger"
	"github.com/robolearn/learning-backend/internal/models"
	"github.com/robolearn/learning-backend/internal/repository/common"
)

// LevelFromPoints возвращает уровень студента по сумме баллов.
// До 4500 баллов действует ступенчатая шкала, дальше уровень
// растёт логарифмически с потолком 100.
func LevelFromPoints(totalPoints int) int {
	switch {
	case totalPoints < 100:
		return 1
	case totalPoints < 300:
		return 2
	case totalPoints < 600:
		return 3
	case totalPoints < 1000:
		return 4
	case totalPoints < 1500:
		return 5
	case totalPoints < 2100:
		return 6
	case totalPoints < 2800:
		return 7
	case totalPoints < 3600:
		return 8
	case totalPoints < 4500:
		return 9
	default:
		level := 10 + int(math.Log10(float64(totalPoints)/4500))
		if level > 100 {
			return 100
		}
		return level
	}
}

// badgeConditionMet вычисляет условие значка по снимку статистики.
// Условие задаётся данными строки badges: вид, необязательный ключ
// (категория симуляции или ключ metadata) и порог.
func badgeConditionMet(badge models.Badge, s *models.StatsSnapshot) (bool, error) {
	switch badge.ConditionType {
	case models.BadgeCondCompletedCoursesAtLeast:
		return s.CompletedCourses >= badge.ConditionValue, nil
	case models.BadgeCondCompletedModulesAtLeast:
		return s.CompletedModules >= badge.ConditionValue, nil
	case models.BadgeCondSimulationRunsAtLeast:
		return s.SimulationRuns >= badge.ConditionValue, nil
	case models.BadgeCondSimulationCategoryRan:
		if badge.ConditionKey == nil {
			return false, fmt.Errorf("у условия %s значка %s нет ключа категории", badge.ConditionType, badge.BadgeID)
		}
		return s.SimulationsByType[*badge.ConditionKey] >= badge.ConditionValue, nil
	case models.BadgeCondPointsAtLeast:
		return s.TotalPoints >= badge.ConditionValue, nil
	case models.BadgeCondLevelAtLeast:
		return s.Level >= badge.ConditionValue, nil
	case models.BadgeCondMetadataMaxAtLeast:
		if badge.ConditionKey == nil {
			return false, fmt.Errorf("у условия %s значка %s нет ключа метаданных", badge.ConditionType, badge.BadgeID)
		}
		return s.MetadataMax[*badge.ConditionKey] >= badge.ConditionValue, nil
	default:
		return false, fmt.Errorf("неизвестный вид условия значка %s: %q", badge.BadgeID, badge.ConditionType)
	}
}

// progressNotifier доставляет события прогресса подключённым клиентам.
type progressNotifier interface {
	BroadcastToUser(userID uuid.UUID, event string, data interface{})
}

// userProgressStore описывает операции над пользователем,
// нужные для начисления баллов.
type userProgressStore interface {
	GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*models.User, error)
	UpdateProgressTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, totalPoints, level int) error
}

// progressionStore описывает операции репозитория прогресса.
type progressionStore interface {
	ListActiveBadges(ctx context.Context) ([]models.Badge, error)
	ListEarnedBadgeIDs(ctx context.Context, userID uuid.UUID) (map[string]struct{}, error)
	ListEarnedBadges(ctx context.Context, userID uuid.UUID) ([]models.EarnedBadge, error)
	AwardBadgeTx(ctx context.Context, tx *sqlx.Tx, userID, badgeID uuid.UUID) (bool, error)
	CreateActivityTx(ctx context.Context, tx *sqlx.Tx, activity *models.StudentActivity) error
	ListActivities(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.StudentActivity, error)
	CreateSimulationRun(ctx context.Context, run *models.SimulationRun) error
	GetStatsSnapshot(ctx context.Context, userID uuid.UUID) (*models.StatsSnapshot, error)
}

// ProgressionService начисляет баллы, пересчитывает уровень
// и присваивает значки.
type ProgressionService struct {
	users    userProgressStore
	repo     progressionStore
	notifier progressNotifier

	runTx func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

// NewProgressionService создаёт сервис прогресса.
func NewProgressionService(db *sqlx.DB, users userProgressStore, repo progressionStore, notifier progressNotifier) *ProgressionService {
	return &ProgressionService{
		users:    users,
		repo:     repo,
		notifier: notifier,
		runTx: func(ctx context.Context, fn func(*sqlx.Tx) error) error {
			return common.WithTransaction(ctx, db, fn)
		},
	}
}

// RecordEvent записывает активность и начисляет баллы в одной транзакции:
// строка пользователя блокируется, уровень пересчитывается от новой суммы.
func (s *ProgressionService) RecordEvent(ctx context.Context, userID uuid.UUID, activityType, description string, points int, metadata *string) (*models.StudentActivity, error) {
	if _, ok := models.ValidActivityTypes[activityType]; !ok {
		return nil, fmt.Errorf("неизвестный тип активности: %s", activityType)
	}
	if points < 0 {
		return nil, fmt.Errorf("баллы не могут быть отрицательными")
	}

	var activity *models.StudentActivity
	var oldLevel, newLevel int

	err := s.runTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		activity, oldLevel, newLevel, err = s.recordEventTx(ctx, tx, userID, activityType, description, points, metadata)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifyLevelUp(userID, oldLevel, newLevel)

	return activity, nil
}

// recordEventTx начисляет баллы внутри уже открытой транзакции.
func (s *ProgressionService) recordEventTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, activityType, description string, points int, metadata *string) (*models.StudentActivity, int, int, error) {
	user, err := s.users.GetForUpdateTx(ctx, tx, userID)
	if err != nil {
		return nil, 0, 0, err
	}

	activity := &models.StudentActivity{
		UserID:       userID,
		ActivityType: activityType,
		Description:  description,
		PointsEarned: points,
		Metadata:     metadata,
	}
	if err := s.repo.CreateActivityTx(ctx, tx, activity); err != nil {
		return nil, 0, 0, err
	}

	newTotal := user.TotalPoints + points
	newLevel := LevelFromPoints(newTotal)
	if err := s.users.UpdateProgressTx(ctx, tx, userID, newTotal, newLevel); err != nil {
		return nil, 0, 0, err
	}

	return activity, user.Level, newLevel, nil
}

// EvaluateBadges проверяет условия всех активных значков и присваивает
// подходящие. Значки обходятся в устойчивом порядке по badge_id;
// бонус за присвоенный значок начисляется до проверки следующего.
// Ошибка одного значка не прерывает обработку остальных.
func (s *ProgressionService) EvaluateBadges(ctx context.Context, userID uuid.UUID) ([]models.Badge, error) {
	badges, err := s.repo.ListActiveBadges(ctx)
	if err != nil {
		return nil, err
	}

	earned, err := s.repo.ListEarnedBadgeIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	var awarded []models.Badge

	for _, badge := range badges {
		if _, ok := earned[badge.BadgeID]; ok {
			continue
		}

		if _, ok := models.ValidBadgeConditions[badge.ConditionType]; !ok {
			logger.Log.WithField("badge_id", badge.BadgeID).WithField("condition_type", badge.ConditionType).
				Warn("значок с неизвестным видом условия пропущен")
			continue
		}

		// Снимок статистики перечитывается перед каждым значком:
		// бонусные баллы предыдущего значка уже учтены.
		snapshot, err := s.repo.GetStatsSnapshot(ctx, userID)
		if err != nil {
			logger.Log.WithError(err).WithField("badge_id", badge.BadgeID).Error("не удалось получить статистику для проверки значка")
			continue
		}

		met, err := badgeConditionMet(badge, snapshot)
		if err != nil {
			logger.Log.WithError(err).WithField("badge_id", badge.BadgeID).Error("не удалось вычислить условие значка")
			continue
		}
		if !met {
			continue
		}

		inserted, err := s.awardBadge(ctx, userID, badge)
		if err != nil {
			logger.Log.WithError(err).WithField("badge_id", badge.BadgeID).Error("не удалось присвоить значок")
			continue
		}
		if !inserted {
			// Значок уже присвоен параллельным запросом.
			earned[badge.BadgeID] = struct{}{}
			continue
		}

		awarded = append(awarded, badge)
		earned[badge.BadgeID] = struct{}{}
	}

	return awarded, nil
}

// awardBadge присваивает значок и начисляет бонус в одной транзакции.
// Возвращает false, если значок уже был присвоен.
func (s *ProgressionService) awardBadge(ctx context.Context, userID uuid.UUID, badge models.Badge) (bool, error) {
	var inserted bool
	var oldLevel, newLevel int

	err := s.runTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		inserted, err = s.repo.AwardBadgeTx(ctx, tx, userID, badge.ID)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}

		metadata := fmt.Sprintf(`{"badge_id": %q}`, badge.BadgeID)
		description := fmt.Sprintf("Получен значок «%s»", badge.Name)

		_, oldLevel, newLevel, err = s.recordEventTx(ctx, tx, userID, models.ActivityTypeBadgeEarned, description, models.PointsBadgeBonus, &metadata)
		return err
	})
	if err != nil || !inserted {
		return false, err
	}

	if s.notifier != nil {
		s.notifier.BroadcastToUser(userID, "badge_earned", badge)
	}
	s.notifyLevelUp(userID, oldLevel, newLevel)

	return true, nil
}

// notifyLevelUp отправляет событие о повышении уровня.
func (s *ProgressionService) notifyLevelUp(userID uuid.UUID, oldLevel, newLevel int) {
	if s.notifier == nil || newLevel <= oldLevel {
		return
	}

	s.notifier.BroadcastToUser(userID, "level_up", map[string]int{
		"old_level": oldLevel,
		"new_level": newLevel,
	})
}

// GetStats возвращает свежий снимок статистики студента.
func (s *ProgressionService) GetStats(ctx context.Context, userID uuid.UUID) (*models.StatsSnapshot, error) {
	return s.repo.GetStatsSnapshot(ctx, userID)
}

// ListBadges возвращает значки пользователя.
func (s *ProgressionService) ListBadges(ctx context.Context, userID uuid.UUID) ([]models.EarnedBadge, error) {
	return s.repo.ListEarnedBadges(ctx, userID)
}

// ListActivities возвращает журнал активности пользователя.
func (s *ProgressionService) ListActivities(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.StudentActivity, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListActivities(ctx, userID, limit, offset)
}

// LogSimulation сохраняет запуск симуляции, начисляет активность
// и проверяет значки, связанные с симуляциями.
func (s *ProgressionService) LogSimulation(ctx context.Context, userID uuid.UUID, category, name string, durationSeconds int) (*models.SimulationRun, error) {
	if category == "" {
		return nil, fmt.Errorf("категория симуляции обязательна")
	}

	run := &models.SimulationRun{
		UserID:          userID,
		Category:        category,
		SimulationName:  name,
		DurationSeconds: durationSeconds,
	}
	if err := s.repo.CreateSimulationRun(ctx, run); err != nil {
		return nil, err
	}

	metadata := fmt.Sprintf(`{"simulation_type": %q}`, category)
	description := fmt.Sprintf("Запуск симуляции: %s", name)
	if _, err := s.RecordEvent(ctx, userID, models.ActivityTypeSimulationRun, description, 0, &metadata); err != nil {
		return nil, err
	}

	if _, err := s.EvaluateBadges(ctx, userID); err != nil {
		logger.Log.WithError(err).Error("не удалось проверить значки после симуляции")
	}

	return run, nil
}

// Dashboard собирает сводку для главной страницы студента.
func (s *ProgressionService) Dashboard(ctx context.Context, userID uuid.UUID, enrollments []models.CourseEnrollment) (*models.DashboardSummary, error) {
	stats, err := s.repo.GetStatsSnapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	activities, err := s.repo.ListActivities(ctx, userID, 10, 0)
	if err != nil {
		return nil, err
	}

	badges, err := s.repo.ListEarnedBadges(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &models.DashboardSummary{
		Stats:            *stats,
		RecentActivities: activities,
		Badges:           badges,
		ActiveCourses:    enrollments,
	}, nil
}
