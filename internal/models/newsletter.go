package models

import (
	"time"

	"github.com/google/uuid"
)

// NewsletterSubscription представляет подписку на рассылку.
type NewsletterSubscription struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	SubscribedAt time.Time `db:"subscribed_at" json:"subscribed_at"`
}

// WaitlistEntry представляет заявку в списке ожидания.
type WaitlistEntry struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Name      *string   `db:"name" json:"name,omitempty"`
	Interest  *string   `db:"interest" json:"interest,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
