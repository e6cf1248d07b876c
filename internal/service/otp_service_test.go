package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/robolearn/learning-backend/internal/models"
	"github.com/robolearn/learning-backend/internal/repository"
)

type mockOTPStore struct {
	mock.Mock
}

func (m *mockOTPStore) CreateTx(ctx context.Context, tx *sqlx.Tx, challenge *models.OTPChallenge) error {
	args := m.Called(ctx, tx, challenge)
	if args.Error(0) == nil {
		challenge.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *mockOTPStore) SupersedeActiveTx(ctx context.Context, tx *sqlx.Tx, email, purpose string) error {
	args := m.Called(ctx, tx, email, purpose)
	return args.Error(0)
}

func (m *mockOTPStore) GetActiveByCodeTx(ctx context.Context, tx *sqlx.Tx, email, code, purpose string) (*models.OTPChallenge, error) {
	args := m.Called(ctx, tx, email, code, purpose)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OTPChallenge), args.Error(1)
}

func (m *mockOTPStore) GetNewestActiveTx(ctx context.Context, tx *sqlx.Tx, email, purpose string) (*models.OTPChallenge, error) {
	args := m.Called(ctx, tx, email, purpose)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OTPChallenge), args.Error(1)
}

func (m *mockOTPStore) IncrementAttemptsTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func (m *mockOTPStore) MarkUsedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func (m *mockOTPStore) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockOTPStore) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

type mockOTPMailer struct {
	mock.Mock
}

func (m *mockOTPMailer) SendOTP(ctx context.Context, email, code, purpose string) error {
	args := m.Called(ctx, email, code, purpose)
	return args.Error(0)
}

var otpTestTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestOTPService(store *mockOTPStore, mailer *mockOTPMailer) *OTPService {
	svc := NewOTPService(nil, store, mailer, 6, 10*time.Minute, 3)
	svc.now = func() time.Time { return otpTestTime }
	svc.random = bytes.NewReader(bytes.Repeat([]byte{0x42}, 64))
	svc.runTx = func(ctx context.Context, fn func(*sqlx.Tx) error) error {
		return fn(nil)
	}
	return svc
}

func TestOTPService_Issue_SupersedesPrevious(t *testing.T) {
	store := new(mockOTPStore)
	svc := newTestOTPService(store, new(mockOTPMailer))
	ctx := context.Background()

	store.On("SupersedeActiveTx", ctx, mock.Anything, "student@example.com", models.OTPPurposeRegistration).Return(nil)
	store.On("CreateTx", ctx, mock.Anything, mock.AnythingOfType("*models.OTPChallenge")).Return(nil)

	challenge, err := svc.Issue(ctx, "  Student@Example.COM ", models.OTPPurposeRegistration)

	assert.NoError(t, err)
	assert.Equal(t, "student@example.com", challenge.Email)
	assert.Equal(t, models.OTPPurposeRegistration, challenge.Purpose)
	assert.Len(t, challenge.Code, 6)
	for _, r := range challenge.Code {
		assert.True(t, r >= '0' && r <= '9', "код должен состоять из цифр: %s", challenge.Code)
	}
	assert.Equal(t, 0, challenge.Attempts)
	assert.False(t, challenge.IsUsed)
	assert.Equal(t, otpTestTime.Add(10*time.Minute), challenge.ExpiresAt)
	store.AssertExpectations(t)
}

func TestOTPService_Issue_UnknownPurpose(t *testing.T) {
	svc := newTestOTPService(new(mockOTPStore), new(mockOTPMailer))

	_, err := svc.Issue(context.Background(), "student@example.com", "telepathy")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "назначение")
}

func TestOTPService_Issue_InvalidEmail(t *testing.T) {
	svc := newTestOTPService(new(mockOTPStore), new(mockOTPMailer))

	_, err := svc.Issue(context.Background(), "not-an-email", models.OTPPurposeRegistration)
	assert.Error(t, err)
}

func TestOTPService_IssueAndSend_Success(t *testing.T) {
	store := new(mockOTPStore)
	mailer := new(mockOTPMailer)
	svc := newTestOTPService(store, mailer)
	ctx := context.Background()

	store.On("SupersedeActiveTx", ctx, mock.Anything, "student@example.com", models.OTPPurposeRegistration).Return(nil)
	store.On("CreateTx", ctx, mock.Anything, mock.AnythingOfType("*models.OTPChallenge")).Return(nil)
	mailer.On("SendOTP", ctx, "student@example.com", mock.AnythingOfType("string"), models.OTPPurposeRegistration).Return(nil)

	challenge, err := svc.IssueAndSend(ctx, "student@example.com", models.OTPPurposeRegistration)

	assert.NoError(t, err)
	assert.NotNil(t, challenge)
	mailer.AssertExpectations(t)
	store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestOTPService_IssueAndSend_DeliveryFailureDeletesCode(t *testing.T) {
	store := new(mockOTPStore)
	mailer := new(mockOTPMailer)
	svc := newTestOTPService(store, mailer)
	ctx := context.Background()

	store.On("SupersedeActiveTx", ctx, mock.Anything, "student@example.com", models.OTPPurposeRegistration).Return(nil)
	store.On("CreateTx", ctx, mock.Anything, mock.AnythingOfType("*models.OTPChallenge")).Return(nil)
	mailer.On("SendOTP", ctx, "student@example.com", mock.AnythingOfType("string"), models.OTPPurposeRegistration).Return(errors.New("smtp: connection refused"))
	store.On("Delete", ctx, mock.AnythingOfType("uuid.UUID")).Return(nil)

	challenge, err := svc.IssueAndSend(ctx, "student@example.com", models.OTPPurposeRegistration)

	assert.Nil(t, challenge)
	assert.ErrorIs(t, err, ErrOTPDeliveryFailed)
	store.AssertCalled(t, "Delete", ctx, mock.AnythingOfType("uuid.UUID"))
}

func TestOTPService_Verify_Success(t *testing.T) {
	store := new(mockOTPStore)
	svc := newTestOTPService(store, new(mockOTPMailer))
	ctx := context.Background()

	challenge := &models.OTPChallenge{
		ID:        uuid.New(),
		Email:     "student@example.com",
		Code:      "123456",
		Purpose:   models.OTPPurposeRegistration,
		Attempts:  1,
		ExpiresAt: otpTestTime.Add(5 * time.Minute),
	}

	store.On("GetActiveByCodeTx", ctx, mock.Anything, "student@example.com", "123456", models.OTPPurposeRegistration).Return(challenge, nil)
	store.On("MarkUsedTx", ctx, mock.Anything, challenge.ID).Return(nil)

	err := svc.Verify(ctx, "student@example.com", "123456", models.OTPPurposeRegistration)
	assert.NoError(t, err)
	store.AssertExpectations(t)
}

func TestOTPService_Verify_Expired(t *testing.T) {
	store := new(mockOTPStore)
	svc := newTestOTPService(store, new(mockOTPMailer))
	ctx := context.Background()

	challenge := &models.OTPChallenge{
		ID:        uuid.New(),
		Code:      "123456",
		ExpiresAt: otpTestTime.Add(-time.Second),
	}

	store.On("GetActiveByCodeTx", ctx, mock.Anything, "student@example.com", "123456", models.OTPPurposeRegistration).Return(challenge, nil)
	store.On("IncrementAttemptsTx", ctx, mock.Anything, challenge.ID).Return(nil)

	err := svc.Verify(ctx, "student@example.com", "123456", models.OTPPurposeRegistration)
	assert.ErrorIs(t, err, ErrOTPExpired)
	// Просроченный код тоже стоит попытку
	store.AssertCalled(t, "IncrementAttemptsTx", ctx, mock.Anything, challenge.ID)
	store.AssertNotCalled(t, "MarkUsedTx", mock.Anything, mock.Anything, mock.Anything)
}

func TestOTPService_Verify_ThirdExpiredFailureBurnsCode(t *testing.T) {
	store := new(mockOTPStore)
	svc := newTestOTPService(store, new(mockOTPMailer))
	ctx := context.Background()

	challenge := &models.OTPChallenge{
		ID:        uuid.New(),
		Code:      "123456",
		Attempts:  2,
		ExpiresAt: otpTestTime.Add(-time.Second),
	}

	store.On("GetActiveByCodeTx", ctx, mock.Anything, "student@example.com", "123456", models.OTPPurposeRegistration).Return(challenge, nil)
	store.On("IncrementAttemptsTx", ctx, mock.Anything, challenge.ID).Return(nil)
	store.On("MarkUsedTx", ctx, mock.Anything, challenge.ID).Return(nil)

	err := svc.Verify(ctx, "student@example.com", "123456", models.OTPPurposeRegistration)
	assert.ErrorIs(t, err, ErrOTPExpired)
	store.AssertExpectations(t)
}

func TestOTPService_Verify_WrongCodeChargesAttempt(t *testing.T) {
	store := new(mockOTPStore)
	svc := newTestOTPService(store, new(mockOTPMailer))
	ctx := context.Background()

	newest := &models.OTPChallenge{
		ID:        uuid.New(),
		Code:      "123456",
		Attempts:  0,
		ExpiresAt: otpTestTime.Add(5 * time.Minute),
	}

	store.On("GetActiveByCodeTx", ctx, mock.Anything, "student@example.com", "999999", models.OTPPurposeRegistration).Return(nil, repository.ErrOTPNotFound)
	store.On("GetNewestActiveTx", ctx, mock.Anything, "student@example.com", models.OTPPurposeRegistration).Return(newest, nil)
	store.On("IncrementAttemptsTx", ctx, mock.Anything, newest.ID).Return(nil)

	err := svc.Verify(ctx, "student@example.com", "999999", models.OTPPurposeRegistration)
	assert.ErrorIs(t, err, ErrOTPInvalidCode)
	store.AssertExpectations(t)
}

func TestOTPService_Verify_LastAttemptExhausts(t *testing.T) {
	store := new(mockOTPStore)
	svc := newTestOTPService(store, new(mockOTPMailer))
	ctx := context.Background()

	newest := &models.OTPChallenge{
		ID:        uuid.New(),
		Code:      "123456",
		Attempts:  2,
		ExpiresAt: otpTestTime.Add(5 * time.Minute),
	}

	store.On("GetActiveByCodeTx", ctx, mock.Anything, "student@example.com", "999999", models.OTPPurposeRegistration).Return(nil, repository.ErrOTPNotFound)
	store.On("GetNewestActiveTx", ctx, mock.Anything, "student@example.com", models.OTPPurposeRegistration).Return(newest, nil)
	store.On("IncrementAttemptsTx", ctx, mock.Anything, newest.ID).Return(nil)
	store.On("MarkUsedTx", ctx, mock.Anything, newest.ID).Return(nil)

	err := svc.Verify(ctx, "student@example.com", "999999", models.OTPPurposeRegistration)
	assert.ErrorIs(t, err, ErrOTPAttemptsExceeded)
	// Исчерпанный код гасится навсегда
	store.AssertCalled(t, "MarkUsedTx", ctx, mock.Anything, newest.ID)
}

func TestOTPService_Verify_AttemptsAlreadyExceeded(t *testing.T) {
	store := new(mockOTPStore)
	svc := newTestOTPService(store, new(mockOTPMailer))
	ctx := context.Background()

	challenge := &models.OTPChallenge{
		ID:        uuid.New(),
		Code:      "123456",
		Attempts:  3,
		ExpiresAt: otpTestTime.Add(5 * time.Minute),
	}

	store.On("GetActiveByCodeTx", ctx, mock.Anything, "student@example.com", "123456", models.OTPPurposeRegistration).Return(challenge, nil)
	store.On("MarkUsedTx", ctx, mock.Anything, challenge.ID).Return(nil)

	err := svc.Verify(ctx, "student@example.com", "123456", models.OTPPurposeRegistration)
	assert.ErrorIs(t, err, ErrOTPAttemptsExceeded)
	store.AssertCalled(t, "MarkUsedTx", ctx, mock.Anything, challenge.ID)
}

func TestOTPService_Verify_NoActiveCode(t *testing.T) {
	store := new(mockOTPStore)
	svc := newTestOTPService(store, new(mockOTPMailer))
	ctx := context.Background()

	store.On("GetActiveByCodeTx", ctx, mock.Anything, "student@example.com", "123456", models.OTPPurposeRegistration).Return(nil, repository.ErrOTPNotFound)
	store.On("GetNewestActiveTx", ctx, mock.Anything, "student@example.com", models.OTPPurposeRegistration).Return(nil, repository.ErrOTPNotFound)

	err := svc.Verify(ctx, "student@example.com", "123456", models.OTPPurposeRegistration)
	assert.ErrorIs(t, err, ErrOTPNotFound)
}

func TestOTPService_Verify_BadCodeFormat(t *testing.T) {
	svc := newTestOTPService(new(mockOTPStore), new(mockOTPMailer))

	err := svc.Verify(context.Background(), "student@example.com", "12345", models.OTPPurposeRegistration)
	assert.Error(t, err)

	err = svc.Verify(context.Background(), "student@example.com", "12ab56", models.OTPPurposeRegistration)
	assert.Error(t, err)
}

// txOTPStore держит один код в памяти и откатывает изменения по
// контракту WithTransaction: транзакция, завершившаяся ошибкой,
// не оставляет следов.
type txOTPStore struct {
	challenge *models.OTPChallenge
}

func (s *txOTPStore) runTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	var saved *models.OTPChallenge
	if s.challenge != nil {
		copied := *s.challenge
		saved = &copied
	}

	if err := fn(nil); err != nil {
		s.challenge = saved
		return err
	}
	return nil
}

func (s *txOTPStore) active(email, purpose string) *models.OTPChallenge {
	if s.challenge == nil || s.challenge.IsUsed {
		return nil
	}
	if s.challenge.Email != email || s.challenge.Purpose != purpose {
		return nil
	}
	return s.challenge
}

func (s *txOTPStore) GetActiveByCodeTx(ctx context.Context, tx *sqlx.Tx, email, code, purpose string) (*models.OTPChallenge, error) {
	if c := s.active(email, purpose); c != nil && c.Code == code {
		copied := *c
		return &copied, nil
	}
	return nil, repository.ErrOTPNotFound
}

func (s *txOTPStore) GetNewestActiveTx(ctx context.Context, tx *sqlx.Tx, email, purpose string) (*models.OTPChallenge, error) {
	if c := s.active(email, purpose); c != nil {
		copied := *c
		return &copied, nil
	}
	return nil, repository.ErrOTPNotFound
}

func (s *txOTPStore) IncrementAttemptsTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	s.challenge.Attempts++
	return nil
}

func (s *txOTPStore) MarkUsedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	s.challenge.IsUsed = true
	return nil
}

func (s *txOTPStore) CreateTx(ctx context.Context, tx *sqlx.Tx, challenge *models.OTPChallenge) error {
	challenge.ID = uuid.New()
	s.challenge = challenge
	return nil
}

func (s *txOTPStore) SupersedeActiveTx(ctx context.Context, tx *sqlx.Tx, email, purpose string) error {
	if c := s.active(email, purpose); c != nil {
		c.IsUsed = true
	}
	return nil
}

func (s *txOTPStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.challenge = nil
	return nil
}

func (s *txOTPStore) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

// Списание попыток должно переживать коммит: три промаха подряд
// навсегда гасят код, и даже верный код после этого не принимается.
func TestOTPService_Verify_AttemptsSurviveFailedTransactions(t *testing.T) {
	store := &txOTPStore{challenge: &models.OTPChallenge{
		ID:        uuid.New(),
		Email:     "student@example.com",
		Code:      "123456",
		Purpose:   models.OTPPurposeRegistration,
		ExpiresAt: otpTestTime.Add(5 * time.Minute),
	}}

	svc := NewOTPService(nil, store, new(mockOTPMailer), 6, 10*time.Minute, 3)
	svc.now = func() time.Time { return otpTestTime }
	svc.runTx = store.runTx
	ctx := context.Background()

	err := svc.Verify(ctx, "student@example.com", "000000", models.OTPPurposeRegistration)
	assert.ErrorIs(t, err, ErrOTPInvalidCode)
	assert.Equal(t, 1, store.challenge.Attempts)

	err = svc.Verify(ctx, "student@example.com", "000000", models.OTPPurposeRegistration)
	assert.ErrorIs(t, err, ErrOTPInvalidCode)
	assert.Equal(t, 2, store.challenge.Attempts)

	err = svc.Verify(ctx, "student@example.com", "000000", models.OTPPurposeRegistration)
	assert.ErrorIs(t, err, ErrOTPAttemptsExceeded)
	assert.Equal(t, 3, store.challenge.Attempts)
	assert.True(t, store.challenge.IsUsed)

	// Верный код после исчерпания лимита уже не работает
	err = svc.Verify(ctx, "student@example.com", "123456", models.OTPPurposeRegistration)
	assert.ErrorIs(t, err, ErrOTPNotFound)
}

func TestOTPService_PurgeExpired(t *testing.T) {
	store := new(mockOTPStore)
	svc := newTestOTPService(store, new(mockOTPMailer))
	ctx := context.Background()

	store.On("PurgeExpired", ctx, otpTestTime).Return(int64(7), nil)

	n, err := svc.PurgeExpired(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(7), n)
}
