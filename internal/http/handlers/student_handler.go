package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/robolearn/learning-backend/internal/dto"
	"github.com/robolearn/learning-backend/internal/http/handlers/common"
	"github.com/robolearn/learning-backend/internal/repository"
	"github.com/robolearn/learning-backend/internal/service"
)

// StudentHandler отвечает за записи на курсы, прогресс и геймификацию.
type StudentHandler struct {
	courses     *service.CourseService
	progression *service.ProgressionService
}

// NewStudentHandler создаёт экземпляр.
func NewStudentHandler(courses *service.CourseService, progression *service.ProgressionService) *StudentHandler {
	return &StudentHandler{courses: courses, progression: progression}
}

// Enroll POST /student/courses/:id/enroll
func (h *StudentHandler) Enroll(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	courseID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	enrollment, err := h.courses.Enroll(c.Request.Context(), userID, courseID)
	if err != nil {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, repository.ErrCourseNotFound):
			status = http.StatusNotFound
		case errors.Is(err, service.ErrAlreadyEnrolled):
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, enrollment)
}

// ListEnrollments GET /student/enrollments
func (h *StudentHandler) ListEnrollments(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	enrollments, err := h.courses.ListEnrollments(c.Request.Context(), userID, c.Query("status"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"enrollments": enrollments})
}

// CompleteModule POST /student/courses/:id/modules/:moduleID/complete
func (h *StudentHandler) CompleteModule(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	courseID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	moduleID, err := common.ParseUUIDParam(c, "moduleID")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Тело запроса опционально: модули без теста завершаются без параметров.
	var req dto.CompleteModuleRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	result, err := h.courses.CompleteModule(c.Request.Context(), userID, courseID, moduleID, req.QuizScore)
	if err != nil {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, repository.ErrModuleNotFound), errors.Is(err, repository.ErrCourseNotFound):
			status = http.StatusNotFound
		case errors.Is(err, service.ErrNotEnrolled):
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.ModuleCompletionResponse{
		Progress:        result.Progress,
		CourseCompleted: result.CourseCompleted,
		EarnedBadges:    result.EarnedBadges,
	})
}

// Dashboard GET /student/dashboard
func (h *StudentHandler) Dashboard(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	active, err := h.courses.ActiveEnrollments(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	summary, err := h.progression.Dashboard(c.Request.Context(), userID, active)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// GetStats GET /student/stats
func (h *StudentHandler) GetStats(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	stats, err := h.progression.GetStats(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ListBadges GET /student/badges
func (h *StudentHandler) ListBadges(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	badges, err := h.progression.ListBadges(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"badges": badges})
}

// ListActivities GET /student/activities
func (h *StudentHandler) ListActivities(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	limit, offset := common.GetPagination(c)

	activities, err := h.progression.ListActivities(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"activities": activities})
}

// LogSimulation POST /student/simulations
func (h *StudentHandler) LogSimulation(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	var req dto.SimulationRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run, err := h.progression.LogSimulation(c.Request.Context(), userID, req.Category, req.Name, req.DurationSeconds)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, run)
}
