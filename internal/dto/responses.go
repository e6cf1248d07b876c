package dto

import (
	"github.com/robolearn/learning-backend/internal/models"
)

// ModuleCompletionResponse возвращается после прохождения модуля.
type ModuleCompletionResponse struct {
	Progress        *models.ModuleProgress `json:"progress"`
	CourseCompleted bool                   `json:"course_completed"`
	EarnedBadges    []models.Badge         `json:"earned_badges,omitempty"`
}
