package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/h2non/filetype"

	"github.com/robolearn/learning-backend/internal/http/handlers/common"
	"github.com/robolearn/learning-backend/internal/models"
	"github.com/robolearn/learning-backend/internal/repository"
	"github.com/robolearn/learning-backend/internal/storage"
)

// Фотографии профиля принимаются только в растровых форматах:
// тип подтверждается по магическим байтам, SVG и прочий текст не проходит.
var imageExtByMIME = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// MediaHandler управляет загрузкой и удалением медиа-файлов.
type MediaHandler struct {
	repo    *repository.MediaRepository
	storage *storage.PhotoStorage
}

// NewMediaHandler создаёт новый хэндлер.
func NewMediaHandler(repo *repository.MediaRepository, storage *storage.PhotoStorage) *MediaHandler {
	return &MediaHandler{repo: repo, storage: storage}
}

// UploadPhoto обрабатывает POST /media/photos.
func (h *MediaHandler) UploadPhoto(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	purpose := c.DefaultPostForm("purpose", models.MediaPurposeAvatar)
	if _, ok := models.ValidMediaPurposes[purpose]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "неизвестное назначение файла: " + purpose})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "поле file обязательно"})
		return
	}

	if file.Size == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "файл не может быть пустым"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer src.Close()

	contentType, err := sniffImageType(src, file.Filename)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Возвращаемся к началу файла после чтения магических байтов.
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "не удалось сбросить позицию файла"})
		return
	}

	relativePath, size, err := h.storage.Save(c.Request.Context(), userID, file.Filename, src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	media := &models.MediaFile{
		UserID:   &userID,
		FilePath: relativePath,
		FileType: contentType,
		Purpose:  purpose,
		FileSize: size,
		IsPublic: true,
	}

	if err := h.repo.Create(c.Request.Context(), media); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, media)
}

// ListMine обрабатывает GET /media. Параметром purpose можно
// отфильтровать, например, только аватары.
func (h *MediaHandler) ListMine(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	purpose := c.Query("purpose")
	if purpose != "" {
		if _, ok := models.ValidMediaPurposes[purpose]; !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "неизвестное назначение файла: " + purpose})
			return
		}
	}

	files, err := h.repo.ListByUser(c.Request.Context(), userID, purpose)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"files": files})
}

// DeleteMedia обрабатывает DELETE /media/:id.
// Пользователь может удалять только свои файлы.
func (h *MediaHandler) DeleteMedia(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	mediaID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "некорректный идентификатор"})
		return
	}

	media, err := h.repo.GetByID(c.Request.Context(), mediaID)
	if err != nil {
		if errors.Is(err, repository.ErrMediaNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "файл не найден"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if media.UserID == nil || *media.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "у вас нет прав на удаление этого файла"})
		return
	}

	if err := h.repo.Delete(c.Request.Context(), mediaID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.storage.Delete(c.Request.Context(), media.FilePath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

// sniffImageType определяет тип файла по магическим байтам и сверяет
// его с расширением. Возвращает MIME тип изображения.
func sniffImageType(src multipart.File, fileName string) (string, error) {
	buffer := make([]byte, 512)
	n, err := src.Read(buffer)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("не удалось прочитать файл")
	}

	kind, err := filetype.Match(buffer[:n])
	if err != nil || kind == filetype.Unknown {
		return "", fmt.Errorf("не удалось определить тип файла, разрешены только изображения")
	}

	contentType := kind.MIME.Value
	canonicalExt, ok := imageExtByMIME[contentType]
	if !ok {
		return "", fmt.Errorf("неподдерживаемый тип файла (%s), разрешены: %s", contentType, allowedImageTypes())
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	if ext != canonicalExt {
		return "", fmt.Errorf("расширение файла (%s) не соответствует реальному типу (%s)", ext, canonicalExt)
	}

	return contentType, nil
}

// allowedImageTypes возвращает отсортированный список разрешённых MIME типов.
func allowedImageTypes() string {
	types := make([]string, 0, len(imageExtByMIME))
	for mimeType := range imageExtByMIME {
		types = append(types, mimeType)
	}
	sort.Strings(types)
	return strings.Join(types, ", ")
}
