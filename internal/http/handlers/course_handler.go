package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/robolearn/learning-backend/internal/dto"
	"github.com/robolearn/learning-backend/internal/http/handlers/common"
	"github.com/robolearn/learning-backend/internal/repository"
	"github.com/robolearn/learning-backend/internal/service"
)

// CourseHandler отвечает за каталог курсов и отзывы.
type CourseHandler struct {
	courses *service.CourseService
}

// NewCourseHandler создаёт экземпляр.
func NewCourseHandler(courses *service.CourseService) *CourseHandler {
	return &CourseHandler{courses: courses}
}

// ListCategories GET /catalog/categories
func (h *CourseHandler) ListCategories(c *gin.Context) {
	categories, err := h.courses.ListCategories(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

// ListCourses GET /catalog/courses
func (h *CourseHandler) ListCourses(c *gin.Context) {
	limit, offset := common.GetPagination(c)

	filter := repository.CourseFilter{
		Difficulty: c.Query("difficulty"),
		Search:     c.Query("search"),
		Limit:      limit,
		Offset:     offset,
	}

	if raw := c.Query("category_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "неверный category_id"})
			return
		}
		filter.CategoryID = &id
	}

	courses, err := h.courses.ListCourses(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"courses": courses})
}

// GetCourse GET /catalog/courses/:slug
func (h *CourseHandler) GetCourse(c *gin.Context) {
	details, err := h.courses.GetCourse(c.Request.Context(), c.Param("slug"))
	if err != nil {
		if errors.Is(err, repository.ErrCourseNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "курс не найден"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, details)
}

// ListReviews GET /catalog/courses/:id/reviews
func (h *CourseHandler) ListReviews(c *gin.Context) {
	courseID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	limit, offset := common.GetPagination(c)

	reviews, err := h.courses.ListReviews(c.Request.Context(), courseID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reviews": reviews})
}

// CreateReview POST /catalog/courses/:id/reviews
func (h *CourseHandler) CreateReview(c *gin.Context) {
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

	var req dto.CreateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	review, err := h.courses.CreateReview(c.Request.Context(), userID, courseID, req.Rating, req.Comment)
	if err != nil {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, repository.ErrCourseNotFound):
			status = http.StatusNotFound
		case errors.Is(err, service.ErrNotEnrolled):
			status = http.StatusForbidden
		case errors.Is(err, service.ErrAlreadyReviewed):
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, review)
}

// UpdateReview PUT /reviews/:id
func (h *CourseHandler) UpdateReview(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	reviewID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req dto.UpdateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	review, err := h.courses.UpdateReview(c.Request.Context(), userID, reviewID, req.Rating, req.Comment)
	if err != nil {
		if errors.Is(err, repository.ErrReviewNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "отзыв не найден"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, review)
}

// DeleteReview DELETE /reviews/:id
func (h *CourseHandler) DeleteReview(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	reviewID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.courses.DeleteReview(c.Request.Context(), userID, reviewID); err != nil {
		if errors.Is(err, repository.ErrReviewNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "отзыв не найден"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}
