package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/robolearn/learning-backend/internal/models"
)

// NewsletterRepository отвечает за подписки на рассылку и список ожидания.
type NewsletterRepository struct {
	db *sqlx.DB
}

// NewNewsletterRepository создаёт экземпляр репозитория.
func NewNewsletterRepository(db *sqlx.DB) *NewsletterRepository {
	return &NewsletterRepository{db: db}
}

// Subscribe создаёт или реактивирует подписку на рассылку.
// Возвращает true, если подписка новая.
func (r *NewsletterRepository) Subscribe(ctx context.Context, sub *models.NewsletterSubscription) (bool, error) {
	query := `
		INSERT INTO newsletter_subscriptions (email, is_active)
		VALUES ($1, TRUE)
		ON CONFLICT (email) DO UPDATE SET is_active = TRUE
		RETURNING id, is_active, subscribed_at, (xmax = 0) AS inserted
	`

	var inserted bool
	if err := r.db.QueryRowxContext(ctx, query, sub.Email).Scan(
		&sub.ID, &sub.IsActive, &sub.SubscribedAt, &inserted,
	); err != nil {
		return false, fmt.Errorf("newsletter repository: subscribe %w", err)
	}

	return inserted, nil
}

// Unsubscribe деактивирует подписку.
func (r *NewsletterRepository) Unsubscribe(ctx context.Context, email string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE newsletter_subscriptions SET is_active = FALSE WHERE email = $1`,
		email,
	); err != nil {
		return fmt.Errorf("newsletter repository: unsubscribe %w", err)
	}

	return nil
}

// AddToWaitlist добавляет заявку в список ожидания.
// Повторная заявка с тем же email не ошибка.
func (r *NewsletterRepository) AddToWaitlist(ctx context.Context, entry *models.WaitlistEntry) error {
	query := `
		INSERT INTO waitlist_entries (email, name, interest)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET name = COALESCE(EXCLUDED.name, waitlist_entries.name),
			interest = COALESCE(EXCLUDED.interest, waitlist_entries.interest)
		RETURNING id, created_at
	`

	if err := r.db.QueryRowxContext(ctx, query, entry.Email, entry.Name, entry.Interest).Scan(
		&entry.ID, &entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("newsletter repository: add to waitlist %w", err)
	}

	return nil
}

// CountWaitlist возвращает число заявок в списке ожидания.
func (r *NewsletterRepository) CountWaitlist(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM waitlist_entries`); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("newsletter repository: count waitlist %w", err)
	}

	return count, nil
}
