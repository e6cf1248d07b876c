package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/robolearn/learning-backend/internal/models"
	"github.com/robolearn/learning-backend/internal/repository/common"
)

// ErrUserNotFound возвращается, когда запись пользователя не найдена.
var ErrUserNotFound = errors.New("user not found")

const userColumns = `id, email, username, password_hash, role, is_active, total_points, level, last_login_at, created_at, updated_at`

// UserRepository отвечает за работу с таблицами users, profiles и user_sessions.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository создаёт экземпляр репозитория.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create создаёт нового пользователя.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, username, password_hash, role, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, total_points, level, created_at, updated_at
	`

	if err := r.db.QueryRowxContext(
		ctx, query,
		user.Email, user.Username, user.PasswordHash, user.Role, user.IsActive,
	).Scan(&user.ID, &user.TotalPoints, &user.Level, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return fmt.Errorf("user repository: create %w", err)
	}

	return nil
}

// GetByEmail возвращает пользователя по email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return common.GetByField[models.User](ctx, r.db, "users", "email", email, ErrUserNotFound)
}

// GetByUsername возвращает пользователя по имени пользователя.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return common.GetByField[models.User](ctx, r.db, "users", "username", username, ErrUserNotFound)
}

// GetByID возвращает пользователя по идентификатору.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return common.GetByID[models.User](ctx, r.db, "users", id, ErrUserNotFound)
}

// Activate помечает пользователя активным после подтверждения email.
func (r *UserRepository) Activate(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `UPDATE users SET is_active = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("user repository: activate %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("user repository: activate rows affected %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}

	return nil
}

// UpdatePassword обновляет хэш пароля пользователя.
func (r *UserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`,
		id, passwordHash,
	); err != nil {
		return fmt.Errorf("user repository: update password %w", err)
	}

	return nil
}

// UpdateEmail обновляет email пользователя.
func (r *UserRepository) UpdateEmail(ctx context.Context, id uuid.UUID, email string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE users SET email = $2, updated_at = NOW() WHERE id = $1`,
		id, email,
	); err != nil {
		return fmt.Errorf("user repository: update email %w", err)
	}

	return nil
}

// GetForUpdateTx возвращает пользователя с блокировкой строки внутри транзакции.
func (r *UserRepository) GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*models.User, error) {
	var user models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: get for update %w", err)
	}

	return &user, nil
}

// UpdateProgressTx сохраняет новые баллы и уровень пользователя внутри транзакции.
func (r *UserRepository) UpdateProgressTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, totalPoints, level int) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET total_points = $2, level = $3, updated_at = NOW() WHERE id = $1`,
		id, totalPoints, level,
	); err != nil {
		return fmt.Errorf("user repository: update progress %w", err)
	}

	return nil
}

// Deactivate обезличивает аккаунт: email заменяется на тупиковый,
// чтобы пользователь мог заново зарегистрироваться на прежний адрес.
func (r *UserRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE users
		SET is_active = FALSE,
			email = 'deleted_' || id::text || '_' || email,
			updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("user repository: deactivate %w", err)
	}

	return nil
}

// UpsertProfile создаёт или обновляет профиль пользователя.
func (r *UserRepository) UpsertProfile(ctx context.Context, profile *models.Profile) error {
	query := `
		INSERT INTO profiles (user_id, first_name, last_name, bio, country, city, institution, field_of_study, photo_id, avatar_url, phone, telegram, website, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			bio = EXCLUDED.bio,
			country = EXCLUDED.country,
			city = EXCLUDED.city,
			institution = EXCLUDED.institution,
			field_of_study = EXCLUDED.field_of_study,
			photo_id = EXCLUDED.photo_id,
			avatar_url = EXCLUDED.avatar_url,
			phone = EXCLUDED.phone,
			telegram = EXCLUDED.telegram,
			website = EXCLUDED.website,
			updated_at = NOW()
		RETURNING updated_at
	`

	if err := r.db.QueryRowxContext(
		ctx,
		query,
		profile.UserID,
		profile.FirstName,
		profile.LastName,
		profile.Bio,
		profile.Country,
		profile.City,
		profile.Institution,
		profile.FieldOfStudy,
		profile.PhotoID,
		profile.AvatarURL,
		profile.Phone,
		profile.Telegram,
		profile.Website,
	).Scan(&profile.UpdatedAt); err != nil {
		return fmt.Errorf("user repository: upsert profile %w", err)
	}

	return nil
}

// GetProfile возвращает профиль пользователя.
func (r *UserRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	query := `
		SELECT user_id, first_name, last_name, bio, country, city, institution, field_of_study, photo_id, avatar_url, phone, telegram, website, updated_at
		FROM profiles
		WHERE user_id = $1
	`
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: get profile %w", err)
	}

	return &profile, nil
}

// CreateSession сохраняет новую сессию пользователя.
func (r *UserRepository) CreateSession(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO user_sessions (user_id, refresh_token, user_agent, ip_address, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	if err := r.db.QueryRowxContext(
		ctx,
		query,
		session.UserID,
		session.RefreshToken,
		session.UserAgent,
		session.IPAddress,
		session.ExpiresAt,
	).Scan(&session.ID, &session.CreatedAt); err != nil {
		return fmt.Errorf("user repository: create session %w", err)
	}

	return nil
}

// GetSessionByToken возвращает сессию по refresh токену.
func (r *UserRepository) GetSessionByToken(ctx context.Context, refreshToken string) (*models.Session, error) {
	var session models.Session
	query := `
		SELECT id, user_id, refresh_token, user_agent, ip_address, expires_at, created_at
		FROM user_sessions
		WHERE refresh_token = $1 AND expires_at > NOW()
	`
	if err := r.db.GetContext(ctx, &session, query, refreshToken); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: get session by token %w", err)
	}

	return &session, nil
}

// DeleteSession удаляет сессию по refresh токену.
func (r *UserRepository) DeleteSession(ctx context.Context, refreshToken string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE refresh_token = $1`, refreshToken); err != nil {
		return fmt.Errorf("user repository: delete session %w", err)
	}

	return nil
}

// DeleteSessionsByUser удаляет все сессии пользователя.
func (r *UserRepository) DeleteSessionsByUser(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("user repository: delete sessions by user %w", err)
	}

	return nil
}

// UpdateLastLoginAt обновляет время последнего входа пользователя.
func (r *UserRepository) UpdateLastLoginAt(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET last_login_at = NOW() WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("user repository: update last login at %w", err)
	}

	return nil
}

// ListSessions возвращает список всех активных сессий пользователя.
func (r *UserRepository) ListSessions(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	query := `
		SELECT id, user_id, refresh_token, user_agent, ip_address, expires_at, created_at
		FROM user_sessions
		WHERE user_id = $1 AND expires_at > NOW()
		ORDER BY created_at DESC
	`

	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, userID); err != nil {
		return nil, fmt.Errorf("user repository: list sessions %w", err)
	}

	return sessions, nil
}

// DeleteSessionByID удаляет сессию по идентификатору.
func (r *UserRepository) DeleteSessionByID(ctx context.Context, sessionID uuid.UUID, userID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE id = $1 AND user_id = $2`, sessionID, userID)
	if err != nil {
		return fmt.Errorf("user repository: delete session by id %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("user repository: delete session by id rows affected %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("user repository: session not found")
	}

	return nil
}
