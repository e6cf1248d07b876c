package models

import (
	"time"

	"github.com/google/uuid"
)

// OTPChallenge представляет одноразовый код, отправленный на email.
type OTPChallenge struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Code      string    `db:"code" json:"-"`
	Purpose   string    `db:"purpose" json:"purpose"`
	Attempts  int       `db:"attempts" json:"attempts"`
	IsUsed    bool      `db:"is_used" json:"is_used"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// IsExpired сообщает, истёк ли срок действия кода на момент now.
func (c *OTPChallenge) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
