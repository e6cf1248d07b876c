package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/robolearn/learning-backend/internal/logger"
	"github.com/robolearn/learning-backend/internal/models"
	"github.com/robolearn/learning-backend/internal/repository"
	"github.com/robolearn/learning-backend/internal/repository/common"
	"github.com/robolearn/learning-backend/internal/validation"
)

// Ошибки курсов и записей.
var (
	ErrAlreadyEnrolled  = errors.New("вы уже записаны на этот курс")
	ErrNotEnrolled      = errors.New("вы не записаны на этот курс")
	ErrAlreadyReviewed  = errors.New("вы уже оставили отзыв об этом курсе")
	ErrCourseNotStarted = errors.New("курс ещё не начат")
)

// CourseDetails объединяет курс с его модулями.
type CourseDetails struct {
	Course  *models.Course        `json:"course"`
	Modules []models.CourseModule `json:"modules"`
}

// EnrollmentDetails объединяет запись на курс с прогрессом по модулям.
type EnrollmentDetails struct {
	Enrollment *models.CourseEnrollment `json:"enrollment"`
	Progress   []models.ModuleProgress  `json:"progress"`
}

// catalogStore описывает операции каталога, нужные сервису курсов.
type catalogStore interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	ListCourses(ctx context.Context, filter repository.CourseFilter) ([]models.Course, error)
	GetCourseByID(ctx context.Context, id uuid.UUID) (*models.Course, error)
	GetCourseBySlug(ctx context.Context, slug string) (*models.Course, error)
	ListModules(ctx context.Context, courseID uuid.UUID) ([]models.CourseModule, error)
	GetModuleByID(ctx context.Context, id uuid.UUID) (*models.CourseModule, error)
	CountModules(ctx context.Context, courseID uuid.UUID) (int, error)
	UpdateCourseMetricsTx(ctx context.Context, tx *sqlx.Tx, courseID uuid.UUID) error
}

// enrollmentStore описывает операции над записями на курсы.
type enrollmentStore interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, enrollment *models.CourseEnrollment) error
	GetByUserAndCourse(ctx context.Context, userID, courseID uuid.UUID) (*models.CourseEnrollment, error)
	GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, userID, courseID uuid.UUID) (*models.CourseEnrollment, error)
	ListByUser(ctx context.Context, userID uuid.UUID, status string) ([]models.CourseEnrollment, error)
	UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status string, progress float64, completed bool) error
	UpsertModuleProgressTx(ctx context.Context, tx *sqlx.Tx, progress *models.ModuleProgress) (bool, error)
	GetModuleProgressTx(ctx context.Context, tx *sqlx.Tx, enrollmentID, moduleID uuid.UUID) (*models.ModuleProgress, error)
	ListModuleProgress(ctx context.Context, enrollmentID uuid.UUID) ([]models.ModuleProgress, error)
	CountCompletedModulesTx(ctx context.Context, tx *sqlx.Tx, enrollmentID uuid.UUID) (int, error)
}

// reviewStore описывает операции над отзывами.
type reviewStore interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, review *models.CourseReview) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.CourseReview, error)
	GetByCourseAndUser(ctx context.Context, courseID, userID uuid.UUID) (*models.CourseReview, error)
	ListByCourseID(ctx context.Context, courseID uuid.UUID, limit, offset int) ([]models.CourseReview, error)
	UpdateTx(ctx context.Context, tx *sqlx.Tx, review *models.CourseReview) error
	DeleteTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error
}

// CourseService управляет каталогом, записями и прохождением курсов.
type CourseService struct {
	catalog     catalogStore
	enrollments enrollmentStore
	reviews     reviewStore
	progression *ProgressionService

	runTx func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

// NewCourseService создаёт сервис курсов.
func NewCourseService(db *sqlx.DB, catalog catalogStore, enrollments enrollmentStore, reviews reviewStore, progression *ProgressionService) *CourseService {
	return &CourseService{
		catalog:     catalog,
		enrollments: enrollments,
		reviews:     reviews,
		progression: progression,
		runTx: func(ctx context.Context, fn func(*sqlx.Tx) error) error {
			return common.WithTransaction(ctx, db, fn)
		},
	}
}

// ListCategories возвращает активные категории каталога.
func (s *CourseService) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.catalog.ListCategories(ctx)
}

// ListCourses возвращает опубликованные курсы по фильтру.
func (s *CourseService) ListCourses(ctx context.Context, filter repository.CourseFilter) ([]models.Course, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Difficulty != "" {
		if _, ok := models.ValidDifficulties[filter.Difficulty]; !ok {
			return nil, fmt.Errorf("неизвестная сложность: %s", filter.Difficulty)
		}
	}

	return s.catalog.ListCourses(ctx, filter)
}

// GetCourse возвращает курс с модулями по slug.
func (s *CourseService) GetCourse(ctx context.Context, slug string) (*CourseDetails, error) {
	course, err := s.catalog.GetCourseBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	modules, err := s.catalog.ListModules(ctx, course.ID)
	if err != nil {
		return nil, err
	}

	return &CourseDetails{Course: course, Modules: modules}, nil
}

// Enroll записывает студента на курс. За запись начисляются баллы,
// затем проверяются значки.
func (s *CourseService) Enroll(ctx context.Context, userID, courseID uuid.UUID) (*models.CourseEnrollment, error) {
	course, err := s.catalog.GetCourseByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !course.IsPublished {
		return nil, repository.ErrCourseNotFound
	}

	enrollment := &models.CourseEnrollment{
		UserID:   userID,
		CourseID: courseID,
		Status:   models.EnrollmentStatusEnrolled,
		Progress: 0,
	}

	err = s.runTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.enrollments.CreateTx(ctx, tx, enrollment); err != nil {
			if errors.Is(err, repository.ErrAlreadyEnrolled) {
				return ErrAlreadyEnrolled
			}
			return err
		}

		return s.catalog.UpdateCourseMetricsTx(ctx, tx, courseID)
	})
	if err != nil {
		return nil, err
	}

	description := fmt.Sprintf("Запись на курс «%s»", course.Title)
	metadata := fmt.Sprintf(`{"course_id": %q}`, courseID)
	if _, err := s.progression.RecordEvent(ctx, userID, models.ActivityTypeCourseStart, description, models.PointsCourseStart, &metadata); err != nil {
		logger.Log.WithError(err).Error("не удалось начислить баллы за запись на курс")
	}

	if _, err := s.progression.EvaluateBadges(ctx, userID); err != nil {
		logger.Log.WithError(err).Error("не удалось проверить значки после записи на курс")
	}

	return enrollment, nil
}

// ModuleCompletionResult описывает итог прохождения модуля.
type ModuleCompletionResult struct {
	Progress        *models.ModuleProgress
	CourseCompleted bool
	EarnedBadges    []models.Badge
}

// CompleteModule отмечает модуль пройденным и начисляет баллы.
// Повторное завершение модуля баллов не приносит. Когда завершён
// последний модуль, курс закрывается и начисляется награда за курс.
func (s *CourseService) CompleteModule(ctx context.Context, userID, courseID, moduleID uuid.UUID, quizScore *float64) (*ModuleCompletionResult, error) {
	module, err := s.catalog.GetModuleByID(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	if module.CourseID != courseID {
		return nil, repository.ErrModuleNotFound
	}

	if quizScore != nil {
		if module.ModuleType != models.ModuleTypeQuiz {
			return nil, fmt.Errorf("результат теста применим только к модулям-тестам")
		}
		if err := validation.ValidateQuizScore(*quizScore); err != nil {
			return nil, err
		}
	}

	course, err := s.catalog.GetCourseByID(ctx, courseID)
	if err != nil {
		return nil, err
	}

	totalModules, err := s.catalog.CountModules(ctx, courseID)
	if err != nil {
		return nil, err
	}

	progress := &models.ModuleProgress{
		ModuleID:    moduleID,
		IsCompleted: true,
		QuizScore:   quizScore,
	}

	var firstCompletion, courseCompleted bool
	var oldLevel, newLevel int

	err = s.runTx(ctx, func(tx *sqlx.Tx) error {
		enrollment, err := s.enrollments.GetForUpdateTx(ctx, tx, userID, courseID)
		if err != nil {
			if errors.Is(err, repository.ErrEnrollmentNotFound) {
				return ErrNotEnrolled
			}
			return err
		}
		progress.EnrollmentID = enrollment.ID

		prior, err := s.enrollments.GetModuleProgressTx(ctx, tx, enrollment.ID, moduleID)
		if err != nil && !errors.Is(err, repository.ErrEnrollmentNotFound) {
			return err
		}
		firstCompletion = prior == nil || !prior.IsCompleted

		if _, err := s.enrollments.UpsertModuleProgressTx(ctx, tx, progress); err != nil {
			return err
		}

		completed, err := s.enrollments.CountCompletedModulesTx(ctx, tx, enrollment.ID)
		if err != nil {
			return err
		}

		percent := float64(0)
		if totalModules > 0 {
			percent = float64(completed) / float64(totalModules) * 100
		}

		// Завершённый курс не возвращается в in_progress при повторном
		// прохождении модулей
		status := models.EnrollmentStatusInProgress
		if enrollment.Status == models.EnrollmentStatusCompleted {
			status = models.EnrollmentStatusCompleted
		}
		courseCompleted = totalModules > 0 && completed >= totalModules &&
			enrollment.Status != models.EnrollmentStatusCompleted
		if courseCompleted {
			status = models.EnrollmentStatusCompleted
		}

		if err := s.enrollments.UpdateStatusTx(ctx, tx, enrollment.ID, status, percent, courseCompleted); err != nil {
			return err
		}

		if firstCompletion {
			points := models.PointsModuleComplete
			if module.ModuleType == models.ModuleTypeQuiz && quizScore != nil {
				points = models.PointsQuizComplete
			}

			description := fmt.Sprintf("Пройден модуль «%s»", module.Title)
			metadata := fmt.Sprintf(`{"module_id": %q}`, moduleID)
			if _, oldLevel, newLevel, err = s.progression.recordEventTx(ctx, tx, userID, models.ActivityTypeModuleComplete, description, points, &metadata); err != nil {
				return err
			}
		}

		if courseCompleted {
			description := fmt.Sprintf("Завершён курс «%s»", course.Title)
			metadata := fmt.Sprintf(`{"course_id": %q}`, courseID)
			if _, _, newLevel, err = s.progression.recordEventTx(ctx, tx, userID, models.ActivityTypeCourseComplete, description, models.PointsCourseComplete, &metadata); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.progression.notifyLevelUp(userID, oldLevel, newLevel)

	result := &ModuleCompletionResult{
		Progress:        progress,
		CourseCompleted: courseCompleted,
	}

	if firstCompletion || courseCompleted {
		earned, err := s.progression.EvaluateBadges(ctx, userID)
		if err != nil {
			logger.Log.WithError(err).Error("не удалось проверить значки после прохождения модуля")
		}
		result.EarnedBadges = earned
	}

	return result, nil
}

// ListEnrollments возвращает записи студента с прогрессом по модулям.
func (s *CourseService) ListEnrollments(ctx context.Context, userID uuid.UUID, status string) ([]EnrollmentDetails, error) {
	if status != "" {
		if _, ok := models.ValidEnrollmentStatuses[status]; !ok {
			return nil, fmt.Errorf("неизвестный статус записи: %s", status)
		}
	}

	enrollments, err := s.enrollments.ListByUser(ctx, userID, status)
	if err != nil {
		return nil, err
	}

	details := make([]EnrollmentDetails, 0, len(enrollments))
	for i := range enrollments {
		progress, err := s.enrollments.ListModuleProgress(ctx, enrollments[i].ID)
		if err != nil {
			return nil, err
		}
		details = append(details, EnrollmentDetails{
			Enrollment: &enrollments[i],
			Progress:   progress,
		})
	}

	return details, nil
}

// ActiveEnrollments возвращает незавершённые записи студента.
func (s *CourseService) ActiveEnrollments(ctx context.Context, userID uuid.UUID) ([]models.CourseEnrollment, error) {
	return s.enrollments.ListByUser(ctx, userID, models.EnrollmentStatusInProgress)
}

// CreateReview создаёт отзыв о курсе и пересчитывает его рейтинг
// в той же транзакции.
func (s *CourseService) CreateReview(ctx context.Context, userID, courseID uuid.UUID, rating int, comment *string) (*models.CourseReview, error) {
	if err := validation.ValidateReviewRating(rating); err != nil {
		return nil, err
	}
	if comment != nil {
		if err := validation.ValidateReviewComment(*comment); err != nil {
			return nil, err
		}
	}

	if _, err := s.catalog.GetCourseByID(ctx, courseID); err != nil {
		return nil, err
	}

	if _, err := s.enrollments.GetByUserAndCourse(ctx, userID, courseID); err != nil {
		if errors.Is(err, repository.ErrEnrollmentNotFound) {
			return nil, ErrNotEnrolled
		}
		return nil, err
	}

	existing, err := s.reviews.GetByCourseAndUser(ctx, courseID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyReviewed
	}

	review := &models.CourseReview{
		CourseID: courseID,
		UserID:   userID,
		Rating:   rating,
		Comment:  comment,
	}

	err = s.runTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.reviews.CreateTx(ctx, tx, review); err != nil {
			return err
		}
		return s.catalog.UpdateCourseMetricsTx(ctx, tx, courseID)
	})
	if err != nil {
		return nil, err
	}

	return review, nil
}

// UpdateReview изменяет отзыв автора и пересчитывает рейтинг курса.
func (s *CourseService) UpdateReview(ctx context.Context, userID, reviewID uuid.UUID, rating int, comment *string) (*models.CourseReview, error) {
	if err := validation.ValidateReviewRating(rating); err != nil {
		return nil, err
	}

	review, err := s.reviews.GetByID(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if review.UserID != userID {
		return nil, fmt.Errorf("отзыв принадлежит другому пользователю")
	}

	review.Rating = rating
	review.Comment = comment

	err = s.runTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.reviews.UpdateTx(ctx, tx, review); err != nil {
			return err
		}
		return s.catalog.UpdateCourseMetricsTx(ctx, tx, review.CourseID)
	})
	if err != nil {
		return nil, err
	}

	return review, nil
}

// DeleteReview удаляет отзыв автора и пересчитывает рейтинг курса.
func (s *CourseService) DeleteReview(ctx context.Context, userID, reviewID uuid.UUID) error {
	review, err := s.reviews.GetByID(ctx, reviewID)
	if err != nil {
		return err
	}
	if review.UserID != userID {
		return fmt.Errorf("отзыв принадлежит другому пользователю")
	}

	return s.runTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.reviews.DeleteTx(ctx, tx, review.ID); err != nil {
			return err
		}
		return s.catalog.UpdateCourseMetricsTx(ctx, tx, review.CourseID)
	})
}

// ListReviews возвращает отзывы о курсе.
func (s *CourseService) ListReviews(ctx context.Context, courseID uuid.UUID, limit, offset int) ([]models.CourseReview, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.reviews.ListByCourseID(ctx, courseID, limit, offset)
}
