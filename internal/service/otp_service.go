package service

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/robolearn/learning-backend/internal/logger"
	"github.com/robolearn/learning-backend/internal/models"
	"github.com/robolearn/learning-backend/internal/repository"
	"github.com/robolearn/learning-backend/internal/repository/common"
	"github.com/robolearn/learning-backend/internal/validation"
)

// Ошибки проверки одноразовых кодов.
var (
	ErrOTPNotFound         = errors.New("код подтверждения не найден")
	ErrOTPInvalidCode      = errors.New("неверный код подтверждения")
	ErrOTPExpired          = errors.New("срок действия кода истёк")
	ErrOTPAttemptsExceeded = errors.New("превышено число попыток ввода кода")
	ErrOTPDeliveryFailed   = errors.New("не удалось отправить код подтверждения")
)

// OTPMailer отправляет письма с кодами подтверждения.
type OTPMailer interface {
	SendOTP(ctx context.Context, email, code, purpose string) error
}

// otpStore описывает операции репозитория, нужные сервису кодов.
type otpStore interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, challenge *models.OTPChallenge) error
	SupersedeActiveTx(ctx context.Context, tx *sqlx.Tx, email, purpose string) error
	GetActiveByCodeTx(ctx context.Context, tx *sqlx.Tx, email, code, purpose string) (*models.OTPChallenge, error)
	GetNewestActiveTx(ctx context.Context, tx *sqlx.Tx, email, purpose string) (*models.OTPChallenge, error)
	IncrementAttemptsTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error
	MarkUsedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// OTPService управляет жизненным циклом одноразовых кодов:
// выпуск, проверка и списание попыток.
type OTPService struct {
	repo        otpStore
	mailer      OTPMailer
	codeLength  int
	ttl         time.Duration
	maxAttempts int

	// Подменяются в тестах для детерминированности.
	now    func() time.Time
	random io.Reader
	runTx  func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

// NewOTPService создаёт сервис одноразовых кодов.
func NewOTPService(db *sqlx.DB, repo otpStore, mailer OTPMailer, codeLength int, ttl time.Duration, maxAttempts int) *OTPService {
	return &OTPService{
		repo:        repo,
		mailer:      mailer,
		codeLength:  codeLength,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		now:         time.Now,
		random:      crand.Reader,
		runTx: func(ctx context.Context, fn func(*sqlx.Tx) error) error {
			return common.WithTransaction(ctx, db, fn)
		},
	}
}

// Issue выпускает новый код для пары (email, purpose).
// Все прежние активные коды этой пары перестают действовать.
func (s *OTPService) Issue(ctx context.Context, email, purpose string) (*models.OTPChallenge, error) {
	if err := validation.ValidateEmail(email); err != nil {
		return nil, err
	}
	if _, ok := models.ValidOTPPurposes[purpose]; !ok {
		return nil, fmt.Errorf("неизвестное назначение кода: %s", purpose)
	}

	email = validation.NormalizeEmail(email)

	code, err := s.generateCode()
	if err != nil {
		return nil, fmt.Errorf("otp service: generate code %w", err)
	}

	now := s.now()
	challenge := &models.OTPChallenge{
		Email:     email,
		Code:      code,
		Purpose:   purpose,
		Attempts:  0,
		IsUsed:    false,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}

	err = s.runTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.repo.SupersedeActiveTx(ctx, tx, email, purpose); err != nil {
			return err
		}
		return s.repo.CreateTx(ctx, tx, challenge)
	})
	if err != nil {
		return nil, err
	}

	return challenge, nil
}

// IssueAndSend выпускает код и отправляет его на email.
// Если письмо отправить не удалось, код удаляется: активным
// остаётся предыдущее состояние без «висящих» кодов.
func (s *OTPService) IssueAndSend(ctx context.Context, email, purpose string) (*models.OTPChallenge, error) {
	challenge, err := s.Issue(ctx, email, purpose)
	if err != nil {
		return nil, err
	}

	if err := s.mailer.SendOTP(ctx, challenge.Email, challenge.Code, challenge.Purpose); err != nil {
		logger.Log.WithError(err).WithField("email", challenge.Email).Error("не удалось отправить письмо с кодом")

		if delErr := s.repo.Delete(ctx, challenge.ID); delErr != nil {
			logger.Log.WithError(delErr).Error("не удалось удалить код после ошибки отправки")
		}

		return nil, fmt.Errorf("%w: %v", ErrOTPDeliveryFailed, err)
	}

	return challenge, nil
}

// Verify проверяет код и списывает его при успехе.
// Неверный код списывает попытку с самого свежего активного кода.
// Результат неудачной проверки (ErrOTPInvalidCode и прочие) возвращается
// отдельно от ошибки транзакции: списание попытки и принудительное
// погашение кода должны закоммититься, а не откатиться вместе с отказом.
func (s *OTPService) Verify(ctx context.Context, email, code, purpose string) error {
	if err := validation.ValidateEmail(email); err != nil {
		return err
	}
	if err := validation.ValidateOTPCode(code, s.codeLength); err != nil {
		return err
	}
	if _, ok := models.ValidOTPPurposes[purpose]; !ok {
		return fmt.Errorf("неизвестное назначение кода: %s", purpose)
	}

	email = validation.NormalizeEmail(email)

	var failure error
	err := s.runTx(ctx, func(tx *sqlx.Tx) error {
		challenge, err := s.repo.GetActiveByCodeTx(ctx, tx, email, code, purpose)
		if err != nil {
			if errors.Is(err, repository.ErrOTPNotFound) {
				failure, err = s.chargeAttempt(ctx, tx, email, purpose)
				return err
			}
			return err
		}

		// Порядок проверок фиксирован: сначала срок действия,
		// затем лимит попыток, затем списание.
		if challenge.IsExpired(s.now()) {
			failure = ErrOTPExpired
			return s.recordFailedAttempt(ctx, tx, challenge)
		}

		if challenge.Attempts >= s.maxAttempts {
			failure = ErrOTPAttemptsExceeded
			return s.repo.MarkUsedTx(ctx, tx, challenge.ID)
		}

		return s.repo.MarkUsedTx(ctx, tx, challenge.ID)
	})
	if err != nil {
		return err
	}

	return failure
}

// chargeAttempt списывает попытку с самого свежего активного кода,
// когда введён неизвестный код. Первое значение - итог проверки для
// вызывающего, второе - ошибка хранилища, откатывающая транзакцию.
func (s *OTPService) chargeAttempt(ctx context.Context, tx *sqlx.Tx, email, purpose string) (error, error) {
	newest, err := s.repo.GetNewestActiveTx(ctx, tx, email, purpose)
	if err != nil {
		if errors.Is(err, repository.ErrOTPNotFound) {
			return ErrOTPNotFound, nil
		}
		return nil, err
	}

	if newest.IsExpired(s.now()) {
		return ErrOTPExpired, s.recordFailedAttempt(ctx, tx, newest)
	}

	if newest.Attempts >= s.maxAttempts {
		return ErrOTPAttemptsExceeded, s.repo.MarkUsedTx(ctx, tx, newest.ID)
	}

	if err := s.recordFailedAttempt(ctx, tx, newest); err != nil {
		return nil, err
	}

	if newest.Attempts+1 >= s.maxAttempts {
		return ErrOTPAttemptsExceeded, nil
	}

	return ErrOTPInvalidCode, nil
}

// recordFailedAttempt увеличивает счётчик попыток; достигнув лимита,
// код гасится навсегда.
func (s *OTPService) recordFailedAttempt(ctx context.Context, tx *sqlx.Tx, challenge *models.OTPChallenge) error {
	if err := s.repo.IncrementAttemptsTx(ctx, tx, challenge.ID); err != nil {
		return err
	}

	if challenge.Attempts+1 >= s.maxAttempts {
		return s.repo.MarkUsedTx(ctx, tx, challenge.ID)
	}

	return nil
}

// PurgeExpired удаляет погашенные истёкшие коды. Запускается периодически.
func (s *OTPService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.PurgeExpired(ctx, s.now())
}

// generateCode генерирует равномерно распределённый цифровой код.
func (s *OTPService) generateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < s.codeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := crand.Int(s.random, max)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%0*d", s.codeLength, n), nil
}
