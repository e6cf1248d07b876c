package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/robolearn/learning-backend/internal/dto"
	"github.com/robolearn/learning-backend/internal/http/handlers/common"
	"github.com/robolearn/learning-backend/internal/models"
	"github.com/robolearn/learning-backend/internal/repository"
	"github.com/robolearn/learning-backend/internal/validation"
)

// ProfileHandler отвечает за работу с профилем студента.
type ProfileHandler struct {
	users *repository.UserRepository
}

// NewProfileHandler создаёт экземпляр.
func NewProfileHandler(users *repository.UserRepository) *ProfileHandler {
	return &ProfileHandler{users: users}
}

// GetMe возвращает текущего пользователя с профилем.
func (h *ProfileHandler) GetMe(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "пользователь не найден"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	profile, err := h.users.GetProfile(c.Request.Context(), userID)
	if err != nil {
		// Профиль мог не создаться при регистрации, создаём дефолтный.
		avatar := models.DefaultAvatarURL(user.Username)
		profile = &models.Profile{
			UserID:    userID,
			AvatarURL: &avatar,
		}
		if err := h.users.UpsertProfile(c.Request.Context(), profile); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "не удалось создать профиль"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"user":    user,
		"profile": profile,
	})
}

// UpdateMe обновляет профиль текущего пользователя.
// Передаются только изменяемые поля, остальные сохраняют значение.
func (h *ProfileHandler) UpdateMe(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	var req dto.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile, err := h.users.GetProfile(c.Request.Context(), userID)
	if err != nil {
		profile = &models.Profile{UserID: userID}
	}

	if req.FirstName != nil {
		if err := validation.ValidateLength("имя", *req.FirstName, 0, 100); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		profile.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		if err := validation.ValidateLength("фамилия", *req.LastName, 0, 100); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		profile.LastName = *req.LastName
	}
	if req.Bio != nil {
		if err := validation.ValidateLength("биография", *req.Bio, 0, 2000); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		profile.Bio = req.Bio
	}
	if req.Country != nil {
		profile.Country = req.Country
	}
	if req.City != nil {
		profile.City = req.City
	}
	if req.Institution != nil {
		profile.Institution = req.Institution
	}
	if req.FieldOfStudy != nil {
		profile.FieldOfStudy = req.FieldOfStudy
	}
	if req.Phone != nil {
		profile.Phone = req.Phone
	}
	if req.Telegram != nil {
		profile.Telegram = req.Telegram
	}
	if req.Website != nil {
		profile.Website = req.Website
	}
	if req.PhotoID != nil {
		if *req.PhotoID == "" {
			profile.PhotoID = nil
		} else {
			id, err := uuid.Parse(*req.PhotoID)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "photo_id некорректен"})
				return
			}
			profile.PhotoID = &id
		}
	}

	if err := h.users.UpsertProfile(c.Request.Context(), profile); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, profile)
}
