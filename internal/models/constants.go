package models

// Difficulty константы сложности курсов
const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

// ModuleType константы типов модулей курса
const (
	ModuleTypeVideo      = "video"
	ModuleTypeSimulation = "simulation"
	ModuleTypeQuiz       = "quiz"
	ModuleTypeAssignment = "assignment"
	ModuleTypeReading    = "reading"
)

// EnrollmentStatus константы статусов записи на курс
const (
	EnrollmentStatusEnrolled   = "enrolled"
	EnrollmentStatusInProgress = "in_progress"
	EnrollmentStatusCompleted  = "completed"
	EnrollmentStatusDropped    = "dropped"
)

// ActivityType константы типов активности студента
const (
	ActivityTypeLogin          = "login"
	ActivityTypeCourseStart    = "course_start"
	ActivityTypeModuleComplete = "module_complete"
	ActivityTypeCourseComplete = "course_complete"
	ActivityTypeBadgeEarned    = "badge_earned"
	ActivityTypeSimulationRun  = "simulation_run"
)

// Награды в баллах за учебные события
const (
	PointsCourseStart    = 10
	PointsModuleComplete = 10
	PointsQuizComplete   = 20
	PointsCourseComplete = 100
	PointsBadgeBonus     = 50
)

// OTPPurpose константы назначений одноразовых кодов
const (
	OTPPurposeRegistration  = "registration"
	OTPPurposePasswordReset = "password_reset"
	OTPPurposeEmailChange   = "email_change"
)

// ValidOTPPurposes список валидных назначений одноразовых кодов
var ValidOTPPurposes = map[string]struct{}{
	OTPPurposeRegistration:  {},
	OTPPurposePasswordReset: {},
	OTPPurposeEmailChange:   {},
}

// ValidDifficulties список валидных сложностей курсов
var ValidDifficulties = map[string]struct{}{
	DifficultyBeginner:     {},
	DifficultyIntermediate: {},
	DifficultyAdvanced:     {},
}

// ValidModuleTypes список валидных типов модулей
var ValidModuleTypes = map[string]struct{}{
	ModuleTypeVideo:      {},
	ModuleTypeSimulation: {},
	ModuleTypeQuiz:       {},
	ModuleTypeAssignment: {},
	ModuleTypeReading:    {},
}

// ValidEnrollmentStatuses список валидных статусов записи
var ValidEnrollmentStatuses = map[string]struct{}{
	EnrollmentStatusEnrolled:   {},
	EnrollmentStatusInProgress: {},
	EnrollmentStatusCompleted:  {},
	EnrollmentStatusDropped:    {},
}

// ValidActivityTypes список валидных типов активности
var ValidActivityTypes = map[string]struct{}{
	ActivityTypeLogin:          {},
	ActivityTypeCourseStart:    {},
	ActivityTypeModuleComplete: {},
	ActivityTypeCourseComplete: {},
	ActivityTypeBadgeEarned:    {},
	ActivityTypeSimulationRun:  {},
}
