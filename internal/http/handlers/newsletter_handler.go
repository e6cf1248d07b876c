package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/robolearn/learning-backend/internal/dto"
	"github.com/robolearn/learning-backend/internal/models"
	"github.com/robolearn/learning-backend/internal/repository"
	"github.com/robolearn/learning-backend/internal/validation"
)

// NewsletterHandler отвечает за подписку на рассылку и лист ожидания.
type NewsletterHandler struct {
	newsletter *repository.NewsletterRepository
}

// NewNewsletterHandler создаёт экземпляр.
func NewNewsletterHandler(newsletter *repository.NewsletterRepository) *NewsletterHandler {
	return &NewsletterHandler{newsletter: newsletter}
}

// Subscribe POST /newsletter/subscribe
func (h *NewsletterHandler) Subscribe(c *gin.Context) {
	var req dto.NewsletterSubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := validation.ValidateEmail(req.Email); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub := &models.NewsletterSubscription{Email: validation.NormalizeEmail(req.Email)}
	created, err := h.newsletter.Subscribe(c.Request.Context(), sub)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"message": "подписка оформлена"})
}

// Unsubscribe POST /newsletter/unsubscribe
func (h *NewsletterHandler) Unsubscribe(c *gin.Context) {
	var req dto.NewsletterSubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.newsletter.Unsubscribe(c.Request.Context(), validation.NormalizeEmail(req.Email)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "подписка отменена"})
}

// JoinWaitlist POST /waitlist
func (h *NewsletterHandler) JoinWaitlist(c *gin.Context) {
	var req dto.WaitlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := validation.ValidateEmail(req.Email); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry := &models.WaitlistEntry{
		Email:    validation.NormalizeEmail(req.Email),
		Name:     req.Name,
		Interest: req.Interest,
	}
	if err := h.newsletter.AddToWaitlist(c.Request.Context(), entry); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	total, err := h.newsletter.CountWaitlist(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "вы добавлены в лист ожидания",
		"position": total,
	})
}
