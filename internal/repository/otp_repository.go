package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/robolearn/learning-backend/internal/models"
)

// ErrOTPNotFound возвращается, когда активный код подтверждения не найден.
var ErrOTPNotFound = errors.New("otp challenge not found")

const otpColumns = `id, email, code, purpose, attempts, is_used, expires_at, created_at`

// OTPRepository отвечает за работу с таблицей otp_challenges.
type OTPRepository struct {
	db *sqlx.DB
}

// NewOTPRepository создаёт экземпляр репозитория.
func NewOTPRepository(db *sqlx.DB) *OTPRepository {
	return &OTPRepository{db: db}
}

// CreateTx сохраняет новый код подтверждения внутри транзакции.
func (r *OTPRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, challenge *models.OTPChallenge) error {
	query := `
		INSERT INTO otp_challenges (email, code, purpose, attempts, is_used, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	if err := tx.QueryRowxContext(
		ctx, query,
		challenge.Email, challenge.Code, challenge.Purpose,
		challenge.Attempts, challenge.IsUsed, challenge.ExpiresAt, challenge.CreatedAt,
	).Scan(&challenge.ID); err != nil {
		return fmt.Errorf("otp repository: create %w", err)
	}

	return nil
}

// SupersedeActiveTx помечает использованными все активные коды
// для пары (email, purpose). Действующим остаётся только новый код.
func (r *OTPRepository) SupersedeActiveTx(ctx context.Context, tx *sqlx.Tx, email, purpose string) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE otp_challenges SET is_used = TRUE WHERE email = $1 AND purpose = $2 AND is_used = FALSE`,
		email, purpose,
	); err != nil {
		return fmt.Errorf("otp repository: supersede active %w", err)
	}

	return nil
}

// GetActiveByCodeTx возвращает неиспользованный код с блокировкой строки.
func (r *OTPRepository) GetActiveByCodeTx(ctx context.Context, tx *sqlx.Tx, email, code, purpose string) (*models.OTPChallenge, error) {
	var challenge models.OTPChallenge
	query := `
		SELECT ` + otpColumns + `
		FROM otp_challenges
		WHERE email = $1 AND code = $2 AND purpose = $3 AND is_used = FALSE
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`
	if err := tx.GetContext(ctx, &challenge, query, email, code, purpose); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOTPNotFound
		}
		return nil, fmt.Errorf("otp repository: get active by code %w", err)
	}

	return &challenge, nil
}

// GetNewestActiveTx возвращает самый свежий активный код для пары
// (email, purpose) с блокировкой строки.
func (r *OTPRepository) GetNewestActiveTx(ctx context.Context, tx *sqlx.Tx, email, purpose string) (*models.OTPChallenge, error) {
	var challenge models.OTPChallenge
	query := `
		SELECT ` + otpColumns + `
		FROM otp_challenges
		WHERE email = $1 AND purpose = $2 AND is_used = FALSE
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`
	if err := tx.GetContext(ctx, &challenge, query, email, purpose); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOTPNotFound
		}
		return nil, fmt.Errorf("otp repository: get newest active %w", err)
	}

	return &challenge, nil
}

// IncrementAttemptsTx увеличивает счётчик неудачных попыток.
func (r *OTPRepository) IncrementAttemptsTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE otp_challenges SET attempts = attempts + 1 WHERE id = $1`,
		id,
	); err != nil {
		return fmt.Errorf("otp repository: increment attempts %w", err)
	}

	return nil
}

// MarkUsedTx помечает код использованным.
func (r *OTPRepository) MarkUsedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE otp_challenges SET is_used = TRUE WHERE id = $1`,
		id,
	); err != nil {
		return fmt.Errorf("otp repository: mark used %w", err)
	}

	return nil
}

// Delete удаляет код подтверждения. Используется, когда письмо
// с кодом не удалось отправить.
func (r *OTPRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM otp_challenges WHERE id = $1`, id); err != nil {
		return fmt.Errorf("otp repository: delete %w", err)
	}

	return nil
}

// PurgeExpired удаляет погашенные коды, срок действия которых истёк
// до указанного момента. Непогашенные строки остаются до supersede
// или исчерпания попыток: журнал выдачи не худеет раньше времени.
func (r *OTPRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM otp_challenges WHERE expires_at <= $1 AND is_used = TRUE`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("otp repository: purge expired %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("otp repository: purge expired rows affected %w", err)
	}

	return rows, nil
}
