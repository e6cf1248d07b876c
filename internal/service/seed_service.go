package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/robolearn/learning-backend/internal/models"
	"github.com/robolearn/learning-backend/internal/repository"
	"github.com/robolearn/learning-backend/internal/repository/common"
)

// SeedService наполняет базу стартовыми данными для разработки:
// каталог значков, категории, демо-курсы и тестовый студент.
type SeedService struct {
	db       *sqlx.DB
	userRepo *repository.UserRepository
}

// NewSeedService создаёт сервис для генерации данных.
func NewSeedService(db *sqlx.DB, userRepo *repository.UserRepository) *SeedService {
	return &SeedService{db: db, userRepo: userRepo}
}

// SeedAccount описывает созданный демо-аккаунт.
type SeedAccount struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// SeedResult описывает итог наполнения базы.
type SeedResult struct {
	BadgesCreated     int           `json:"badges_created"`
	CategoriesCreated int           `json:"categories_created"`
	CoursesCreated    int           `json:"courses_created"`
	Accounts          []SeedAccount `json:"accounts"`
}

type seedBadge struct {
	badgeID     string
	name        string
	description string
	icon        string
	condType    string
	condKey     string
	condValue   int
}

var seedBadges = []seedBadge{
	{"first_circuit", "Circuit Builder", "Built your first circuit in the simulator", "⚡", models.BadgeCondSimulationCategoryRan, "circuit", 1},
	{"ros_rookie", "ROS Rookie", "Completed your first ROS simulation", "🤖", models.BadgeCondSimulationCategoryRan, "ros", 1},
	{"code_master", "Code Master", "Wrote 100 lines of robot control code", "💻", models.BadgeCondMetadataMaxAtLeast, "lines_of_code", 100},
	{"first_course", "Learning Starter", "Completed your first course", "🎓", models.BadgeCondCompletedCoursesAtLeast, "", 1},
	{"dedicated_learner", "Dedicated Learner", "Completed 5 courses", "📚", models.BadgeCondCompletedCoursesAtLeast, "", 5},
	{"points_collector", "Points Collector", "Earned 1000 points", "🏆", models.BadgeCondPointsAtLeast, "", 1000},
	{"module_master", "Module Master", "Completed 50 modules", "⭐", models.BadgeCondCompletedModulesAtLeast, "", 50},
	{"simulation_expert", "Simulation Expert", "Ran 25 simulations", "🔬", models.BadgeCondSimulationRunsAtLeast, "", 25},
	{"level_up", "Level Up", "Reached level 5", "🚀", models.BadgeCondLevelAtLeast, "", 5},
	{"high_achiever", "High Achiever", "Reached level 10", "👑", models.BadgeCondLevelAtLeast, "", 10},
}

type seedCategory struct {
	slug string
	name string
	icon string
}

var seedCategories = []seedCategory{
	{"programming", "Программирование роботов", "💻"},
	{"electronics", "Электроника и схемы", "⚡"},
	{"ros", "ROS и симуляции", "🤖"},
	{"mechanics", "Механика и конструирование", "⚙️"},
}

type seedModule struct {
	title      string
	moduleType string
	duration   int
}

type seedCourse struct {
	slug       string
	title      string
	desc       string
	category   string
	difficulty string
	hours      int
	modules    []seedModule
}

var seedCourses = []seedCourse{
	{
		slug:       "introduction-to-robotics",
		title:      "Introduction to Robotics",
		desc:       "Learn the fundamentals of robotics including sensors, actuators, and basic programming.",
		category:   "programming",
		difficulty: models.DifficultyBeginner,
		hours:      16,
		modules: []seedModule{
			{"What is Robotics?", models.ModuleTypeVideo, 30},
			{"Sensors and Actuators", models.ModuleTypeReading, 45},
			{"Your First Robot Program", models.ModuleTypeSimulation, 60},
			{"Fundamentals Quiz", models.ModuleTypeQuiz, 20},
		},
	},
	{
		slug:       "circuit-design-basics",
		title:      "Circuit Design Basics",
		desc:       "Build and simulate electronic circuits, from LEDs to motor drivers.",
		category:   "electronics",
		difficulty: models.DifficultyBeginner,
		hours:      12,
		modules: []seedModule{
			{"Voltage, Current, Resistance", models.ModuleTypeVideo, 40},
			{"Building Your First Circuit", models.ModuleTypeSimulation, 60},
			{"Motor Driver Circuits", models.ModuleTypeSimulation, 60},
			{"Circuits Quiz", models.ModuleTypeQuiz, 20},
		},
	},
	{
		slug:       "ros-for-beginners",
		title:      "ROS for Beginners",
		desc:       "Get started with the Robot Operating System: nodes, topics, and your first simulated robot.",
		category:   "ros",
		difficulty: models.DifficultyIntermediate,
		hours:      24,
		modules: []seedModule{
			{"ROS Architecture", models.ModuleTypeVideo, 45},
			{"Nodes and Topics", models.ModuleTypeReading, 40},
			{"TurtleSim Practice", models.ModuleTypeSimulation, 90},
			{"Writing a Publisher", models.ModuleTypeAssignment, 120},
			{"ROS Basics Quiz", models.ModuleTypeQuiz, 30},
		},
	},
}

// Seed наполняет базу. Вставки идемпотентны, повторный вызов безопасен.
func (s *SeedService) Seed(ctx context.Context) (*SeedResult, error) {
	result := &SeedResult{}

	err := common.WithTransaction(ctx, s.db, func(tx *sqlx.Tx) error {
		badges := common.NewBatchInserter(tx,
			`INSERT INTO badges (badge_id, name, description, icon, condition_type, condition_key, condition_value)`, 7, 100,
		).WithSuffix(`ON CONFLICT (badge_id) DO NOTHING`)
		for _, b := range seedBadges {
			var condKey interface{}
			if b.condKey != "" {
				condKey = b.condKey
			}
			if err := badges.Add(ctx, b.badgeID, b.name, b.description, b.icon, b.condType, condKey, b.condValue); err != nil {
				return fmt.Errorf("seed service: badges %w", err)
			}
		}
		if err := badges.Flush(ctx); err != nil {
			return fmt.Errorf("seed service: badges %w", err)
		}
		result.BadgesCreated = len(seedBadges)

		categories := common.NewBatchInserter(tx,
			`INSERT INTO categories (slug, name, icon, sort_order)`, 4, 100,
		).WithSuffix(`ON CONFLICT (slug) DO NOTHING`)
		for i, c := range seedCategories {
			if err := categories.Add(ctx, c.slug, c.name, c.icon, i); err != nil {
				return fmt.Errorf("seed service: categories %w", err)
			}
		}
		if err := categories.Flush(ctx); err != nil {
			return fmt.Errorf("seed service: categories %w", err)
		}
		result.CategoriesCreated = len(seedCategories)

		for _, course := range seedCourses {
			created, err := s.seedCourseTx(ctx, tx, course)
			if err != nil {
				return err
			}
			if created {
				result.CoursesCreated++
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	account, err := s.seedStudent(ctx)
	if err != nil {
		return nil, err
	}
	if account != nil {
		result.Accounts = append(result.Accounts, *account)
	}

	return result, nil
}

func (s *SeedService) seedCourseTx(ctx context.Context, tx *sqlx.Tx, course seedCourse) (bool, error) {
	var categoryID *uuid.UUID
	var id uuid.UUID
	if err := tx.QueryRowxContext(ctx,
		`SELECT id FROM categories WHERE slug = $1`, course.category,
	).Scan(&id); err == nil {
		categoryID = &id
	}

	var courseID uuid.UUID
	err := tx.QueryRowxContext(ctx, `
		INSERT INTO courses (slug, title, description, category_id, difficulty, duration_hours, is_published)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		ON CONFLICT (slug) DO NOTHING
		RETURNING id
	`, course.slug, course.title, course.desc, categoryID, course.difficulty, course.hours).Scan(&courseID)
	if err != nil {
		// Курс уже существует, модули не дублируем.
		return false, nil
	}

	modules := common.NewBatchInserter(tx,
		`INSERT INTO course_modules (course_id, title, module_type, duration_minutes, sort_order)`, 5, 100,
	)
	for i, m := range course.modules {
		if err := modules.Add(ctx, courseID, m.title, m.moduleType, m.duration, i); err != nil {
			return false, fmt.Errorf("seed service: modules %w", err)
		}
	}
	if err := modules.Flush(ctx); err != nil {
		return false, fmt.Errorf("seed service: modules %w", err)
	}

	return true, nil
}

func (s *SeedService) seedStudent(ctx context.Context) (*SeedAccount, error) {
	const (
		email    = "student@robolearn.io"
		username = "demo_student"
		password = "Student123"
	)

	if _, err := s.userRepo.GetByEmail(ctx, email); err == nil {
		return nil, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("seed service: bcrypt %w", err)
	}

	user := &models.User{
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		Role:         "student",
		IsActive:     true,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("seed service: create user %w", err)
	}

	avatar := models.DefaultAvatarURL(username)
	profile := &models.Profile{
		UserID:    user.ID,
		FirstName: "Демо",
		LastName:  "Студент",
		AvatarURL: &avatar,
	}
	if err := s.userRepo.UpsertProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("seed service: create profile %w", err)
	}

	return &SeedAccount{Email: email, Username: username, Password: password}, nil
}
