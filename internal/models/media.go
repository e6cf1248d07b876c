package models

import (
	"time"

	"github.com/google/uuid"
)

// Назначения загружаемых файлов.
const (
	MediaPurposeAvatar          = "avatar"
	MediaPurposeCourseThumbnail = "course_thumbnail"
)

// ValidMediaPurposes - допустимые значения поля purpose.
var ValidMediaPurposes = map[string]struct{}{
	MediaPurposeAvatar:          {},
	MediaPurposeCourseThumbnail: {},
}

// MediaFile описывает загруженный файл.
type MediaFile struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	UserID    *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
	FilePath  string     `db:"file_path" json:"file_path"`
	FileType  string     `db:"file_type" json:"file_type"`
	Purpose   string     `db:"purpose" json:"purpose"`
	FileSize  int64      `db:"file_size" json:"file_size"`
	IsPublic  bool       `db:"is_public" json:"is_public"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
