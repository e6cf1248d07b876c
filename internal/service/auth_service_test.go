package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"

	"github.com/robolearn/learning-backend/internal/models"
	"github.com/robolearn/learning-backend/internal/repository"
)

type mockAuthRepo struct {
	mock.Mock
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	if args.Error(0) == nil {
		user.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *mockAuthRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockAuthRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockAuthRepo) Activate(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

func (m *mockAuthRepo) UpdateEmail(ctx context.Context, id uuid.UUID, email string) error {
	args := m.Called(ctx, id, email)
	return args.Error(0)
}

func (m *mockAuthRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockAuthRepo) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *mockAuthRepo) UpsertProfile(ctx context.Context, profile *models.Profile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

func (m *mockAuthRepo) CreateSession(ctx context.Context, session *models.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *mockAuthRepo) DeleteSession(ctx context.Context, refreshToken string) error {
	args := m.Called(ctx, refreshToken)
	return args.Error(0)
}

func (m *mockAuthRepo) DeleteSessionsByUser(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *mockAuthRepo) UpdateLastLoginAt(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *mockAuthRepo) ListSessions(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.Session), args.Error(1)
}

func (m *mockAuthRepo) DeleteSessionByID(ctx context.Context, sessionID uuid.UUID, userID uuid.UUID) error {
	args := m.Called(ctx, sessionID, userID)
	return args.Error(0)
}

type mockOTPChecker struct {
	mock.Mock
}

func (m *mockOTPChecker) IssueAndSend(ctx context.Context, email, purpose string) (*models.OTPChallenge, error) {
	args := m.Called(ctx, email, purpose)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OTPChallenge), args.Error(1)
}

func (m *mockOTPChecker) Verify(ctx context.Context, email, code, purpose string) error {
	args := m.Called(ctx, email, code, purpose)
	return args.Error(0)
}

type mockWelcomeMailer struct {
	mock.Mock
}

func (m *mockWelcomeMailer) SendWelcome(ctx context.Context, email, username string) error {
	args := m.Called(ctx, email, username)
	return args.Error(0)
}

func newTestAuthService(repo *mockAuthRepo, otp *mockOTPChecker, mailer *mockWelcomeMailer) *AuthService {
	tm := NewTokenManager("test-access-secret", "test-refresh-secret", 15*time.Minute, 720*time.Hour)
	return NewAuthService(repo, tm, otp, mailer)
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("не удалось захешировать пароль: %v", err)
	}
	return string(hash)
}

func TestAuthService_Register_NewUser(t *testing.T) {
	repo := new(mockAuthRepo)
	otp := new(mockOTPChecker)
	svc := newTestAuthService(repo, otp, new(mockWelcomeMailer))
	ctx := context.Background()

	repo.On("GetByEmail", ctx, "student@example.com").Return(nil, repository.ErrUserNotFound)
	repo.On("Create", ctx, mock.AnythingOfType("*models.User")).Return(nil)
	repo.On("UpsertProfile", ctx, mock.AnythingOfType("*models.Profile")).Return(nil)
	otp.On("IssueAndSend", ctx, "student@example.com", models.OTPPurposeRegistration).Return(&models.OTPChallenge{}, nil)

	user, err := svc.Register(ctx, RegisterInput{
		Email:     " Student@Example.com ",
		Password:  "Password123",
		Username:  "robo_fan",
		FirstName: "Иван",
	})

	assert.NoError(t, err)
	assert.Equal(t, "student@example.com", user.Email)
	assert.Equal(t, "robo_fan", user.Username)
	assert.Equal(t, "student", user.Role)
	assert.False(t, user.IsActive)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("Password123")))
	repo.AssertExpectations(t)
	otp.AssertExpectations(t)
}

func TestAuthService_Register_DerivesUsernameFromEmail(t *testing.T) {
	repo := new(mockAuthRepo)
	otp := new(mockOTPChecker)
	svc := newTestAuthService(repo, otp, new(mockWelcomeMailer))
	ctx := context.Background()

	repo.On("GetByEmail", ctx, "ivan.petrov@example.com").Return(nil, repository.ErrUserNotFound)
	repo.On("Create", ctx, mock.Anything).Return(nil)
	repo.On("UpsertProfile", ctx, mock.Anything).Return(nil)
	otp.On("IssueAndSend", ctx, "ivan.petrov@example.com", models.OTPPurposeRegistration).Return(&models.OTPChallenge{}, nil)

	user, err := svc.Register(ctx, RegisterInput{
		Email:    "ivan.petrov@example.com",
		Password: "Password123",
	})

	assert.NoError(t, err)
	assert.Equal(t, "ivan_petrov", user.Username)
}

func TestAuthService_Register_ExistingActiveEmail(t *testing.T) {
	repo := new(mockAuthRepo)
	svc := newTestAuthService(repo, new(mockOTPChecker), new(mockWelcomeMailer))
	ctx := context.Background()

	existing := &models.User{ID: uuid.New(), Email: "student@example.com", IsActive: true}
	repo.On("GetByEmail", ctx, "student@example.com").Return(existing, nil)

	_, err := svc.Register(ctx, RegisterInput{Email: "student@example.com", Password: "Password123"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "уже зарегистрирован")
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAuthService_Register_InactiveAccountResendsCode(t *testing.T) {
	repo := new(mockAuthRepo)
	otp := new(mockOTPChecker)
	svc := newTestAuthService(repo, otp, new(mockWelcomeMailer))
	ctx := context.Background()

	existing := &models.User{ID: uuid.New(), Email: "student@example.com", IsActive: false}
	repo.On("GetByEmail", ctx, "student@example.com").Return(existing, nil)
	otp.On("IssueAndSend", ctx, "student@example.com", models.OTPPurposeRegistration).Return(&models.OTPChallenge{}, nil)

	user, err := svc.Register(ctx, RegisterInput{Email: "student@example.com", Password: "Password123"})

	assert.NoError(t, err)
	assert.Equal(t, existing.ID, user.ID)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	otp.AssertExpectations(t)
}

func TestAuthService_Register_WeakPassword(t *testing.T) {
	svc := newTestAuthService(new(mockAuthRepo), new(mockOTPChecker), new(mockWelcomeMailer))

	_, err := svc.Register(context.Background(), RegisterInput{Email: "student@example.com", Password: "123"})
	assert.Error(t, err)
}

func TestAuthService_VerifyRegistration_ActivatesAccount(t *testing.T) {
	repo := new(mockAuthRepo)
	otp := new(mockOTPChecker)
	mailer := new(mockWelcomeMailer)
	svc := newTestAuthService(repo, otp, mailer)
	ctx := context.Background()

	user := &models.User{ID: uuid.New(), Email: "student@example.com", Username: "robo_fan", Role: "student", IsActive: false}

	otp.On("Verify", ctx, "student@example.com", "123456", models.OTPPurposeRegistration).Return(nil)
	repo.On("GetByEmail", ctx, "student@example.com").Return(user, nil)
	repo.On("Activate", ctx, user.ID).Return(nil)
	mailer.On("SendWelcome", ctx, "student@example.com", "robo_fan").Return(nil)
	repo.On("CreateSession", ctx, mock.AnythingOfType("*models.Session")).Return(nil)
	repo.On("GetProfile", ctx, user.ID).Return(&models.Profile{UserID: user.ID}, nil)

	result, err := svc.VerifyRegistration(ctx, "student@example.com", "123456", map[string]string{"ip": "127.0.0.1"})

	assert.NoError(t, err)
	assert.True(t, result.User.IsActive)
	assert.NotEmpty(t, result.TokenPair.AccessToken)
	assert.NotEmpty(t, result.TokenPair.RefreshToken)
	repo.AssertExpectations(t)
	mailer.AssertExpectations(t)
}

func TestAuthService_VerifyRegistration_WrongCode(t *testing.T) {
	repo := new(mockAuthRepo)
	otp := new(mockOTPChecker)
	svc := newTestAuthService(repo, otp, new(mockWelcomeMailer))
	ctx := context.Background()

	otp.On("Verify", ctx, "student@example.com", "999999", models.OTPPurposeRegistration).Return(ErrOTPInvalidCode)

	_, err := svc.VerifyRegistration(ctx, "student@example.com", "999999", nil)
	assert.ErrorIs(t, err, ErrOTPInvalidCode)
	repo.AssertNotCalled(t, "Activate", mock.Anything, mock.Anything)
}

func TestAuthService_Login_Success(t *testing.T) {
	repo := new(mockAuthRepo)
	svc := newTestAuthService(repo, new(mockOTPChecker), new(mockWelcomeMailer))
	ctx := context.Background()

	user := &models.User{
		ID:           uuid.New(),
		Email:        "student@example.com",
		Username:     "robo_fan",
		Role:         "student",
		IsActive:     true,
		PasswordHash: hashPassword(t, "Password123"),
	}

	repo.On("GetByEmail", ctx, "student@example.com").Return(user, nil)
	repo.On("UpdateLastLoginAt", ctx, user.ID).Return(nil)
	repo.On("CreateSession", ctx, mock.AnythingOfType("*models.Session")).Return(nil)
	repo.On("GetProfile", ctx, user.ID).Return(&models.Profile{UserID: user.ID}, nil)

	result, err := svc.Login(ctx, LoginInput{Email: "student@example.com", Password: "Password123"}, nil)

	assert.NoError(t, err)
	assert.Equal(t, user.ID, result.User.ID)
	assert.NotEmpty(t, result.TokenPair.AccessToken)
	repo.AssertExpectations(t)
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	repo := new(mockAuthRepo)
	svc := newTestAuthService(repo, new(mockOTPChecker), new(mockWelcomeMailer))
	ctx := context.Background()

	user := &models.User{
		ID:           uuid.New(),
		Email:        "student@example.com",
		IsActive:     true,
		PasswordHash: hashPassword(t, "Password123"),
	}

	repo.On("GetByEmail", ctx, "student@example.com").Return(user, nil)

	_, err := svc.Login(ctx, LoginInput{Email: "student@example.com", Password: "wrong"}, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "неверный email или пароль")
}

func TestAuthService_Login_InactiveAccount(t *testing.T) {
	repo := new(mockAuthRepo)
	svc := newTestAuthService(repo, new(mockOTPChecker), new(mockWelcomeMailer))
	ctx := context.Background()

	user := &models.User{ID: uuid.New(), Email: "student@example.com", IsActive: false}
	repo.On("GetByEmail", ctx, "student@example.com").Return(user, nil)

	_, err := svc.Login(ctx, LoginInput{Email: "student@example.com", Password: "Password123"}, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "не подтверждён")
}

func TestAuthService_Refresh_RotatesSession(t *testing.T) {
	repo := new(mockAuthRepo)
	svc := newTestAuthService(repo, new(mockOTPChecker), new(mockWelcomeMailer))
	ctx := context.Background()

	user := &models.User{ID: uuid.New(), Email: "student@example.com", Role: "student", IsActive: true}
	pair, _, _, err := svc.tokenManager.GeneratePair(user)
	if err != nil {
		t.Fatalf("не удалось выпустить токены: %v", err)
	}

	repo.On("GetByID", ctx, user.ID).Return(user, nil)
	repo.On("DeleteSession", ctx, pair.RefreshToken).Return(nil)
	repo.On("CreateSession", ctx, mock.AnythingOfType("*models.Session")).Return(nil)

	newPair, err := svc.Refresh(ctx, pair.RefreshToken, nil)

	assert.NoError(t, err)
	assert.NotEmpty(t, newPair.AccessToken)
	repo.AssertExpectations(t)
}

func TestAuthService_Refresh_GarbageToken(t *testing.T) {
	svc := newTestAuthService(new(mockAuthRepo), new(mockOTPChecker), new(mockWelcomeMailer))

	_, err := svc.Refresh(context.Background(), "not-a-jwt", nil)
	assert.Error(t, err)
}

func TestAuthService_ForgotPassword_UnknownEmailSilent(t *testing.T) {
	repo := new(mockAuthRepo)
	otp := new(mockOTPChecker)
	svc := newTestAuthService(repo, otp, new(mockWelcomeMailer))
	ctx := context.Background()

	repo.On("GetByEmail", ctx, "ghost@example.com").Return(nil, repository.ErrUserNotFound)

	err := svc.ForgotPassword(ctx, "ghost@example.com")

	assert.NoError(t, err)
	otp.AssertNotCalled(t, "IssueAndSend", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthService_ForgotPassword_SendsCode(t *testing.T) {
	repo := new(mockAuthRepo)
	otp := new(mockOTPChecker)
	svc := newTestAuthService(repo, otp, new(mockWelcomeMailer))
	ctx := context.Background()

	user := &models.User{ID: uuid.New(), Email: "student@example.com", IsActive: true}
	repo.On("GetByEmail", ctx, "student@example.com").Return(user, nil)
	otp.On("IssueAndSend", ctx, "student@example.com", models.OTPPurposePasswordReset).Return(&models.OTPChallenge{}, nil)

	err := svc.ForgotPassword(ctx, "student@example.com")

	assert.NoError(t, err)
	otp.AssertExpectations(t)
}

func TestAuthService_ResetPassword_TerminatesSessions(t *testing.T) {
	repo := new(mockAuthRepo)
	otp := new(mockOTPChecker)
	svc := newTestAuthService(repo, otp, new(mockWelcomeMailer))
	ctx := context.Background()

	user := &models.User{ID: uuid.New(), Email: "student@example.com", IsActive: true}

	otp.On("Verify", ctx, "student@example.com", "123456", models.OTPPurposePasswordReset).Return(nil)
	repo.On("GetByEmail", ctx, "student@example.com").Return(user, nil)
	repo.On("UpdatePassword", ctx, user.ID, mock.AnythingOfType("string")).Return(nil)
	repo.On("DeleteSessionsByUser", ctx, user.ID).Return(nil)

	err := svc.ResetPassword(ctx, "student@example.com", "123456", "NewPassword123")

	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestAuthService_ChangePassword_Success(t *testing.T) {
	repo := new(mockAuthRepo)
	svc := newTestAuthService(repo, new(mockOTPChecker), new(mockWelcomeMailer))
	ctx := context.Background()

	user := &models.User{
		ID:           uuid.New(),
		Email:        "student@example.com",
		PasswordHash: hashPassword(t, "OldPassword123"),
		IsActive:     true,
	}

	repo.On("GetByID", ctx, user.ID).Return(user, nil)
	repo.On("UpdatePassword", ctx, user.ID, mock.AnythingOfType("string")).Return(nil)
	repo.On("DeleteSessionsByUser", ctx, user.ID).Return(nil)

	err := svc.ChangePassword(ctx, user.ID, "OldPassword123", "NewPassword456")

	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestAuthService_ChangePassword_WrongCurrent(t *testing.T) {
	repo := new(mockAuthRepo)
	svc := newTestAuthService(repo, new(mockOTPChecker), new(mockWelcomeMailer))
	ctx := context.Background()

	user := &models.User{
		ID:           uuid.New(),
		PasswordHash: hashPassword(t, "OldPassword123"),
	}

	repo.On("GetByID", ctx, user.ID).Return(user, nil)

	err := svc.ChangePassword(ctx, user.ID, "WrongPassword1", "NewPassword456")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "неверный текущий пароль")
	repo.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthService_ChangePassword_WeakNewPassword(t *testing.T) {
	repo := new(mockAuthRepo)
	svc := newTestAuthService(repo, new(mockOTPChecker), new(mockWelcomeMailer))

	err := svc.ChangePassword(context.Background(), uuid.New(), "OldPassword123", "short")

	assert.Error(t, err)
	repo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestAuthService_RequestEmailChange_EmailTaken(t *testing.T) {
	repo := new(mockAuthRepo)
	svc := newTestAuthService(repo, new(mockOTPChecker), new(mockWelcomeMailer))
	ctx := context.Background()

	taken := &models.User{ID: uuid.New(), Email: "taken@example.com"}
	repo.On("GetByEmail", ctx, "taken@example.com").Return(taken, nil)

	err := svc.RequestEmailChange(ctx, uuid.New(), "taken@example.com")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "уже используется")
}

func TestAuthService_ConfirmEmailChange(t *testing.T) {
	repo := new(mockAuthRepo)
	otp := new(mockOTPChecker)
	svc := newTestAuthService(repo, otp, new(mockWelcomeMailer))
	ctx := context.Background()
	userID := uuid.New()

	otp.On("Verify", ctx, "new@example.com", "123456", models.OTPPurposeEmailChange).Return(nil)
	repo.On("UpdateEmail", ctx, userID, "new@example.com").Return(nil)

	err := svc.ConfirmEmailChange(ctx, userID, "new@example.com", "123456")

	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestAuthService_DeleteAccount(t *testing.T) {
	repo := new(mockAuthRepo)
	svc := newTestAuthService(repo, new(mockOTPChecker), new(mockWelcomeMailer))
	ctx := context.Background()
	userID := uuid.New()

	repo.On("Deactivate", ctx, userID).Return(nil)
	repo.On("DeleteSessionsByUser", ctx, userID).Return(nil)

	err := svc.DeleteAccount(ctx, userID)

	assert.NoError(t, err)
	repo.AssertExpectations(t)
}
