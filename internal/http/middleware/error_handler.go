package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/robolearn/learning-backend/internal/logger"
	"github.com/robolearn/learning-backend/internal/repository"
	"github.com/robolearn/learning-backend/internal/service"
)

// ErrorHandler обрабатывает ошибки централизованно.
// Маскирует внутренние ошибки и возвращает понятные сообщения клиенту.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Проверяем, не был ли уже отправлен ответ
		if c.Writer.Written() {
			return
		}

		if len(c.Errors) > 0 {
			err := c.Errors.Last()

			statusCode := http.StatusInternalServerError
			message := "внутренняя ошибка сервера"

			logger.Log.WithFields(logrus.Fields{
				"error":  err.Error(),
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Error("ошибка обработки запроса")

			switch {
			case errors.Is(err.Err, repository.ErrUserNotFound):
				statusCode = http.StatusNotFound
				message = "пользователь не найден"
			case errors.Is(err.Err, repository.ErrCourseNotFound):
				statusCode = http.StatusNotFound
				message = "курс не найден"
			case errors.Is(err.Err, repository.ErrModuleNotFound):
				statusCode = http.StatusNotFound
				message = "модуль курса не найден"
			case errors.Is(err.Err, repository.ErrEnrollmentNotFound), errors.Is(err.Err, service.ErrNotEnrolled):
				statusCode = http.StatusNotFound
				message = "запись на курс не найдена"
			case errors.Is(err.Err, service.ErrAlreadyEnrolled):
				statusCode = http.StatusConflict
				message = "вы уже записаны на этот курс"
			case errors.Is(err.Err, service.ErrAlreadyReviewed):
				statusCode = http.StatusConflict
				message = "вы уже оставили отзыв на этот курс"
			// Ошибки кодов огрубляются до двух сообщений, чтобы ответ
			// не подсказывал перебирающему, что именно не сошлось
			case errors.Is(err.Err, service.ErrOTPInvalidCode), errors.Is(err.Err, service.ErrOTPNotFound):
				statusCode = http.StatusBadRequest
				message = "неверный код подтверждения"
			case errors.Is(err.Err, service.ErrOTPExpired), errors.Is(err.Err, service.ErrOTPAttemptsExceeded):
				statusCode = http.StatusBadRequest
				message = "код недействителен, запросите новый"
			case err.Error() != "":
				// Если ошибка содержит понятное сообщение, используем его.
				// Но только если это не внутренняя ошибка.
				errStr := err.Error()
				if !containsInternalKeywords(errStr) {
					message = errStr
					if contains(errStr, "неверный") || contains(errStr, "невалид") {
						statusCode = http.StatusBadRequest
					} else if contains(errStr, "нет прав") || contains(errStr, "не авторизован") {
						statusCode = http.StatusForbidden
					}
				}
			}

			c.JSON(statusCode, gin.H{"error": message})
		}
	}
}

// containsInternalKeywords проверяет, содержит ли строка ключевые слова внутренних ошибок.
func containsInternalKeywords(s string) bool {
	keywords := []string{
		"sql:",
		"database",
		"connection",
		"timeout",
		"internal",
		"panic",
		"runtime",
	}

	for _, keyword := range keywords {
		if contains(s, keyword) {
			return true
		}
	}
	return false
}

// contains проверяет, содержит ли строка подстроку (case-insensitive).
func contains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
