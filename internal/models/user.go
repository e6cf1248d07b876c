package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// User описывает сущность пользователя платформы.
type User struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	Username     string     `db:"username" json:"username"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         string     `db:"role" json:"role"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	TotalPoints  int        `db:"total_points" json:"total_points"`
	Level        int        `db:"level" json:"level"`
	LastLoginAt  *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Profile описывает публичный профиль студента.
type Profile struct {
	UserID       uuid.UUID  `db:"user_id" json:"user_id"`
	FirstName    string     `db:"first_name" json:"first_name"`
	LastName     string     `db:"last_name" json:"last_name"`
	Bio          *string    `db:"bio" json:"bio,omitempty"`
	Country      *string    `db:"country" json:"country,omitempty"`
	City         *string    `db:"city" json:"city,omitempty"`
	Institution  *string    `db:"institution" json:"institution,omitempty"`
	FieldOfStudy *string    `db:"field_of_study" json:"field_of_study,omitempty"`
	PhotoID      *uuid.UUID `db:"photo_id" json:"photo_id,omitempty"`
	AvatarURL    *string    `db:"avatar_url" json:"avatar_url,omitempty"`
	Phone        *string    `db:"phone" json:"phone,omitempty"`
	Telegram     *string    `db:"telegram" json:"telegram,omitempty"`
	Website      *string    `db:"website" json:"website,omitempty"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// DefaultAvatarURL возвращает сгенерированный аватар для пользователя без фото.
func DefaultAvatarURL(username string) string {
	return fmt.Sprintf("https://api.dicebear.com/7.x/avataaars/svg?seed=%s", username)
}

// Session представляет сохранённую сессию пользователя.
type Session struct {
	ID           uuid.UUID `db:"id" json:"id"`
	UserID       uuid.UUID `db:"user_id" json:"user_id"`
	RefreshToken string    `db:"refresh_token" json:"refresh_token"`
	UserAgent    *string   `db:"user_agent" json:"user_agent,omitempty"`
	IPAddress    *string   `db:"ip_address" json:"ip_address,omitempty"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
