package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/robolearn/learning-backend/internal/models"
)

type mockUserStore struct {
	mock.Mock
}

func (m *mockUserStore) GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserStore) UpdateProgressTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, totalPoints, level int) error {
	args := m.Called(ctx, tx, id, totalPoints, level)
	return args.Error(0)
}

type mockProgressionStore struct {
	mock.Mock
}

func (m *mockProgressionStore) ListActiveBadges(ctx context.Context) ([]models.Badge, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Badge), args.Error(1)
}

func (m *mockProgressionStore) ListEarnedBadgeIDs(ctx context.Context, userID uuid.UUID) (map[string]struct{}, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]struct{}), args.Error(1)
}

func (m *mockProgressionStore) ListEarnedBadges(ctx context.Context, userID uuid.UUID) ([]models.EarnedBadge, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.EarnedBadge), args.Error(1)
}

func (m *mockProgressionStore) AwardBadgeTx(ctx context.Context, tx *sqlx.Tx, userID, badgeID uuid.UUID) (bool, error) {
	args := m.Called(ctx, tx, userID, badgeID)
	return args.Bool(0), args.Error(1)
}

func (m *mockProgressionStore) CreateActivityTx(ctx context.Context, tx *sqlx.Tx, activity *models.StudentActivity) error {
	args := m.Called(ctx, tx, activity)
	if args.Error(0) == nil {
		activity.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *mockProgressionStore) ListActivities(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.StudentActivity, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]models.StudentActivity), args.Error(1)
}

func (m *mockProgressionStore) CreateSimulationRun(ctx context.Context, run *models.SimulationRun) error {
	args := m.Called(ctx, run)
	if args.Error(0) == nil {
		run.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *mockProgressionStore) GetStatsSnapshot(ctx context.Context, userID uuid.UUID) (*models.StatsSnapshot, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StatsSnapshot), args.Error(1)
}

// recordingNotifier собирает отправленные события, чтобы проверять
// уведомления без веб-сокетов.
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
	data   []interface{}
}

func (n *recordingNotifier) BroadcastToUser(userID uuid.UUID, event string, data interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	n.data = append(n.data, data)
}

func newTestProgressionService(users *mockUserStore, repo *mockProgressionStore, notifier *recordingNotifier) *ProgressionService {
	var n progressNotifier
	if notifier != nil {
		n = notifier
	}
	svc := NewProgressionService(nil, users, repo, n)
	svc.runTx = func(ctx context.Context, fn func(*sqlx.Tx) error) error {
		return fn(nil)
	}
	return svc
}

func TestLevelFromPoints(t *testing.T) {
	cases := []struct {
		points int
		level  int
	}{
		{0, 1},
		{50, 1},
		{99, 1},
		{100, 2},
		{150, 2},
		{299, 2},
		{300, 3},
		{500, 3},
		{999, 4},
		{1000, 5},
		{1200, 5},
		{1499, 5},
		{2100, 7},
		{4499, 9},
		{4500, 10},
		{45000, 11},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.level, LevelFromPoints(tc.points), "баллы: %d", tc.points)
	}
}

func TestProgressionService_RecordEvent_AwardsPointsAndLevel(t *testing.T) {
	users := new(mockUserStore)
	repo := new(mockProgressionStore)
	notifier := &recordingNotifier{}
	svc := newTestProgressionService(users, repo, notifier)
	ctx := context.Background()
	userID := uuid.New()

	user := &models.User{ID: userID, TotalPoints: 950, Level: 4}
	users.On("GetForUpdateTx", ctx, mock.Anything, userID).Return(user, nil)
	repo.On("CreateActivityTx", ctx, mock.Anything, mock.AnythingOfType("*models.StudentActivity")).Return(nil)
	users.On("UpdateProgressTx", ctx, mock.Anything, userID, 1010, 5).Return(nil)

	activity, err := svc.RecordEvent(ctx, userID, models.ActivityTypeModuleComplete, "Пройден модуль", 60, nil)

	assert.NoError(t, err)
	assert.Equal(t, 60, activity.PointsEarned)
	assert.Equal(t, models.ActivityTypeModuleComplete, activity.ActivityType)
	users.AssertExpectations(t)
	repo.AssertExpectations(t)

	// Переход с 4-го на 5-й уровень должен породить событие level_up.
	assert.Equal(t, []string{"level_up"}, notifier.events)
}

func TestProgressionService_RecordEvent_NoLevelUpNoEvent(t *testing.T) {
	users := new(mockUserStore)
	repo := new(mockProgressionStore)
	notifier := &recordingNotifier{}
	svc := newTestProgressionService(users, repo, notifier)
	ctx := context.Background()
	userID := uuid.New()

	user := &models.User{ID: userID, TotalPoints: 10, Level: 1}
	users.On("GetForUpdateTx", ctx, mock.Anything, userID).Return(user, nil)
	repo.On("CreateActivityTx", ctx, mock.Anything, mock.Anything).Return(nil)
	users.On("UpdateProgressTx", ctx, mock.Anything, userID, 20, 1).Return(nil)

	_, err := svc.RecordEvent(ctx, userID, models.ActivityTypeCourseStart, "Запись на курс", 10, nil)

	assert.NoError(t, err)
	assert.Empty(t, notifier.events)
}

func TestProgressionService_RecordEvent_UnknownActivityType(t *testing.T) {
	svc := newTestProgressionService(new(mockUserStore), new(mockProgressionStore), nil)

	_, err := svc.RecordEvent(context.Background(), uuid.New(), "time_travel", "", 10, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "тип активности")
}

func TestProgressionService_RecordEvent_NegativePoints(t *testing.T) {
	svc := newTestProgressionService(new(mockUserStore), new(mockProgressionStore), nil)

	_, err := svc.RecordEvent(context.Background(), uuid.New(), models.ActivityTypeLogin, "", -5, nil)
	assert.Error(t, err)
}

func TestProgressionService_EvaluateBadges_AwardsWithBonus(t *testing.T) {
	users := new(mockUserStore)
	repo := new(mockProgressionStore)
	notifier := &recordingNotifier{}
	svc := newTestProgressionService(users, repo, notifier)
	ctx := context.Background()
	userID := uuid.New()

	firstCourse := models.Badge{
		ID: uuid.New(), BadgeID: "first_course", Name: "Первый курс",
		ConditionType: models.BadgeCondCompletedCoursesAtLeast, ConditionValue: 1,
	}
	pointsCollector := models.Badge{
		ID: uuid.New(), BadgeID: "points_collector", Name: "Коллекционер баллов",
		ConditionType: models.BadgeCondPointsAtLeast, ConditionValue: 1000,
	}

	repo.On("ListActiveBadges", ctx).Return([]models.Badge{firstCourse, pointsCollector}, nil)
	repo.On("ListEarnedBadgeIDs", ctx, userID).Return(map[string]struct{}{}, nil)

	// Бонус за первый значок поднимает сумму до 1010, поэтому второй
	// значок (1000 баллов) берётся уже в этом же проходе.
	repo.On("GetStatsSnapshot", ctx, userID).Return(&models.StatsSnapshot{CompletedCourses: 1, TotalPoints: 960}, nil).Once()
	repo.On("GetStatsSnapshot", ctx, userID).Return(&models.StatsSnapshot{CompletedCourses: 1, TotalPoints: 1010}, nil).Once()

	repo.On("AwardBadgeTx", ctx, mock.Anything, userID, firstCourse.ID).Return(true, nil)
	repo.On("AwardBadgeTx", ctx, mock.Anything, userID, pointsCollector.ID).Return(true, nil)

	users.On("GetForUpdateTx", ctx, mock.Anything, userID).Return(&models.User{ID: userID, TotalPoints: 960, Level: 4}, nil).Once()
	users.On("GetForUpdateTx", ctx, mock.Anything, userID).Return(&models.User{ID: userID, TotalPoints: 1010, Level: 5}, nil).Once()
	repo.On("CreateActivityTx", ctx, mock.Anything, mock.Anything).Return(nil)
	users.On("UpdateProgressTx", ctx, mock.Anything, userID, 1010, 5).Return(nil)
	users.On("UpdateProgressTx", ctx, mock.Anything, userID, 1060, 5).Return(nil)

	awarded, err := svc.EvaluateBadges(ctx, userID)

	assert.NoError(t, err)
	assert.Len(t, awarded, 2)
	assert.Equal(t, "first_course", awarded[0].BadgeID)
	assert.Equal(t, "points_collector", awarded[1].BadgeID)
	users.AssertExpectations(t)
	repo.AssertExpectations(t)

	// badge_earned за каждый значок плюс level_up за переход 4 -> 5.
	assert.Contains(t, notifier.events, "badge_earned")
	assert.Contains(t, notifier.events, "level_up")
}

func TestProgressionService_EvaluateBadges_SkipsEarned(t *testing.T) {
	repo := new(mockProgressionStore)
	svc := newTestProgressionService(new(mockUserStore), repo, nil)
	ctx := context.Background()
	userID := uuid.New()

	badge := models.Badge{
		ID: uuid.New(), BadgeID: "first_course",
		ConditionType: models.BadgeCondCompletedCoursesAtLeast, ConditionValue: 1,
	}
	repo.On("ListActiveBadges", ctx).Return([]models.Badge{badge}, nil)
	repo.On("ListEarnedBadgeIDs", ctx, userID).Return(map[string]struct{}{"first_course": {}}, nil)

	awarded, err := svc.EvaluateBadges(ctx, userID)

	assert.NoError(t, err)
	assert.Empty(t, awarded)
	repo.AssertNotCalled(t, "GetStatsSnapshot", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "AwardBadgeTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProgressionService_EvaluateBadges_ConcurrentAwardNotDuplicated(t *testing.T) {
	users := new(mockUserStore)
	repo := new(mockProgressionStore)
	notifier := &recordingNotifier{}
	svc := newTestProgressionService(users, repo, notifier)
	ctx := context.Background()
	userID := uuid.New()

	badge := models.Badge{
		ID: uuid.New(), BadgeID: "first_course",
		ConditionType: models.BadgeCondCompletedCoursesAtLeast, ConditionValue: 1,
	}
	repo.On("ListActiveBadges", ctx).Return([]models.Badge{badge}, nil)
	repo.On("ListEarnedBadgeIDs", ctx, userID).Return(map[string]struct{}{}, nil)
	repo.On("GetStatsSnapshot", ctx, userID).Return(&models.StatsSnapshot{CompletedCourses: 1}, nil)

	// Параллельный запрос уже вставил строку значка.
	repo.On("AwardBadgeTx", ctx, mock.Anything, userID, badge.ID).Return(false, nil)

	awarded, err := svc.EvaluateBadges(ctx, userID)

	assert.NoError(t, err)
	assert.Empty(t, awarded)
	assert.Empty(t, notifier.events)
	users.AssertNotCalled(t, "GetForUpdateTx", mock.Anything, mock.Anything, mock.Anything)
}

func TestProgressionService_EvaluateBadges_ErrorDoesNotStopOthers(t *testing.T) {
	users := new(mockUserStore)
	repo := new(mockProgressionStore)
	svc := newTestProgressionService(users, repo, nil)
	ctx := context.Background()
	userID := uuid.New()

	linesKey := "lines_of_code"
	broken := models.Badge{
		ID: uuid.New(), BadgeID: "code_master",
		ConditionType: models.BadgeCondMetadataMaxAtLeast, ConditionKey: &linesKey, ConditionValue: 100,
	}
	healthy := models.Badge{
		ID: uuid.New(), BadgeID: "first_course",
		ConditionType: models.BadgeCondCompletedCoursesAtLeast, ConditionValue: 1,
	}

	repo.On("ListActiveBadges", ctx).Return([]models.Badge{broken, healthy}, nil)
	repo.On("ListEarnedBadgeIDs", ctx, userID).Return(map[string]struct{}{}, nil)

	repo.On("GetStatsSnapshot", ctx, userID).Return(nil, errors.New("db: connection lost")).Once()
	repo.On("GetStatsSnapshot", ctx, userID).Return(&models.StatsSnapshot{CompletedCourses: 1}, nil).Once()

	repo.On("AwardBadgeTx", ctx, mock.Anything, userID, healthy.ID).Return(true, nil)
	users.On("GetForUpdateTx", ctx, mock.Anything, userID).Return(&models.User{ID: userID, TotalPoints: 0, Level: 1}, nil)
	repo.On("CreateActivityTx", ctx, mock.Anything, mock.Anything).Return(nil)
	users.On("UpdateProgressTx", ctx, mock.Anything, userID, models.PointsBadgeBonus, 1).Return(nil)

	awarded, err := svc.EvaluateBadges(ctx, userID)

	assert.NoError(t, err)
	assert.Len(t, awarded, 1)
	assert.Equal(t, "first_course", awarded[0].BadgeID)
}

func TestProgressionService_EvaluateBadges_UnknownConditionIgnored(t *testing.T) {
	repo := new(mockProgressionStore)
	svc := newTestProgressionService(new(mockUserStore), repo, nil)
	ctx := context.Background()
	userID := uuid.New()

	badge := models.Badge{
		ID: uuid.New(), BadgeID: "intergalactic_champion",
		ConditionType: "galaxies_visited_at_least", ConditionValue: 3,
	}
	repo.On("ListActiveBadges", ctx).Return([]models.Badge{badge}, nil)
	repo.On("ListEarnedBadgeIDs", ctx, userID).Return(map[string]struct{}{}, nil)

	awarded, err := svc.EvaluateBadges(ctx, userID)

	assert.NoError(t, err)
	assert.Empty(t, awarded)
	repo.AssertNotCalled(t, "GetStatsSnapshot", mock.Anything, mock.Anything)
}

func TestBadgeConditionMet(t *testing.T) {
	circuit := "circuit"
	lines := "lines_of_code"

	snapshot := &models.StatsSnapshot{
		TotalPoints:       1200,
		Level:             5,
		CompletedCourses:  2,
		CompletedModules:  14,
		SimulationRuns:    6,
		SimulationsByType: map[string]int{"circuit": 3},
		MetadataMax:       map[string]int{"lines_of_code": 80},
	}

	cases := []struct {
		name  string
		badge models.Badge
		want  bool
	}{
		{"курсы достигнуты", models.Badge{ConditionType: models.BadgeCondCompletedCoursesAtLeast, ConditionValue: 2}, true},
		{"курсов не хватает", models.Badge{ConditionType: models.BadgeCondCompletedCoursesAtLeast, ConditionValue: 5}, false},
		{"модули", models.Badge{ConditionType: models.BadgeCondCompletedModulesAtLeast, ConditionValue: 10}, true},
		{"все симуляции", models.Badge{ConditionType: models.BadgeCondSimulationRunsAtLeast, ConditionValue: 25}, false},
		{"категория симуляций", models.Badge{ConditionType: models.BadgeCondSimulationCategoryRan, ConditionKey: &circuit, ConditionValue: 1}, true},
		{"другая категория", models.Badge{ConditionType: models.BadgeCondSimulationCategoryRan, ConditionKey: strPtr("ros"), ConditionValue: 1}, false},
		{"баллы", models.Badge{ConditionType: models.BadgeCondPointsAtLeast, ConditionValue: 1000}, true},
		{"уровень", models.Badge{ConditionType: models.BadgeCondLevelAtLeast, ConditionValue: 10}, false},
		{"метаданные ниже порога", models.Badge{ConditionType: models.BadgeCondMetadataMaxAtLeast, ConditionKey: &lines, ConditionValue: 100}, false},
		{"метаданные на пороге", models.Badge{ConditionType: models.BadgeCondMetadataMaxAtLeast, ConditionKey: &lines, ConditionValue: 80}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := badgeConditionMet(tc.badge, snapshot)
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBadgeConditionMet_MissingKey(t *testing.T) {
	snapshot := &models.StatsSnapshot{}

	_, err := badgeConditionMet(models.Badge{
		BadgeID:       "first_circuit",
		ConditionType: models.BadgeCondSimulationCategoryRan,
	}, snapshot)
	assert.Error(t, err)

	_, err = badgeConditionMet(models.Badge{
		BadgeID:       "code_master",
		ConditionType: models.BadgeCondMetadataMaxAtLeast,
	}, snapshot)
	assert.Error(t, err)
}

func strPtr(s string) *string { return &s }

func TestProgressionService_LogSimulation(t *testing.T) {
	users := new(mockUserStore)
	repo := new(mockProgressionStore)
	svc := newTestProgressionService(users, repo, nil)
	ctx := context.Background()
	userID := uuid.New()

	repo.On("CreateSimulationRun", ctx, mock.AnythingOfType("*models.SimulationRun")).Return(nil)
	users.On("GetForUpdateTx", ctx, mock.Anything, userID).Return(&models.User{ID: userID, TotalPoints: 100, Level: 2}, nil)
	repo.On("CreateActivityTx", ctx, mock.Anything, mock.Anything).Return(nil)
	users.On("UpdateProgressTx", ctx, mock.Anything, userID, 100, 2).Return(nil)
	repo.On("ListActiveBadges", ctx).Return([]models.Badge{}, nil)
	repo.On("ListEarnedBadgeIDs", ctx, userID).Return(map[string]struct{}{}, nil)

	run, err := svc.LogSimulation(ctx, userID, "circuit", "Схема светофора", 420)

	assert.NoError(t, err)
	assert.Equal(t, "circuit", run.Category)
	assert.Equal(t, 420, run.DurationSeconds)
	repo.AssertExpectations(t)
}

func TestProgressionService_LogSimulation_EmptyCategory(t *testing.T) {
	svc := newTestProgressionService(new(mockUserStore), new(mockProgressionStore), nil)

	_, err := svc.LogSimulation(context.Background(), uuid.New(), "", "test", 10)
	assert.Error(t, err)
}

func TestProgressionService_Dashboard(t *testing.T) {
	repo := new(mockProgressionStore)
	svc := newTestProgressionService(new(mockUserStore), repo, nil)
	ctx := context.Background()
	userID := uuid.New()

	stats := &models.StatsSnapshot{TotalPoints: 320, Level: 3}
	activities := []models.StudentActivity{{ID: uuid.New(), UserID: userID}}
	badges := []models.EarnedBadge{}
	enrollments := []models.CourseEnrollment{{ID: uuid.New(), UserID: userID}}

	repo.On("GetStatsSnapshot", ctx, userID).Return(stats, nil)
	repo.On("ListActivities", ctx, userID, 10, 0).Return(activities, nil)
	repo.On("ListEarnedBadges", ctx, userID).Return(badges, nil)

	summary, err := svc.Dashboard(ctx, userID, enrollments)

	assert.NoError(t, err)
	assert.Equal(t, 320, summary.Stats.TotalPoints)
	assert.Len(t, summary.RecentActivities, 1)
	assert.Len(t, summary.ActiveCourses, 1)
}
