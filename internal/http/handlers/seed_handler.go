package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/robolearn/learning-backend/internal/service"
)

// SeedHandler наполняет базу стартовыми данными (только development).
type SeedHandler struct {
	seedService *service.SeedService
}

// NewSeedHandler создаёт новый seed handler.
func NewSeedHandler(seedService *service.SeedService) *SeedHandler {
	return &SeedHandler{seedService: seedService}
}

// Seed генерирует стартовые данные.
// POST /api/seed
func (h *SeedHandler) Seed(c *gin.Context) {
	result, err := h.seedService.Seed(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "не удалось создать стартовые данные",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "стартовые данные созданы",
		"result":  result,
	})
}
