package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/google/uuid"

	"github.com/robolearn/learning-backend/internal/logger"
	"github.com/robolearn/learning-backend/internal/models"
	"github.com/robolearn/learning-backend/internal/repository"
	"github.com/robolearn/learning-backend/internal/validation"
)

// AuthRepository описывает зависимости AuthService от слоя хранилища.
type AuthRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	Activate(ctx context.Context, id uuid.UUID) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdateEmail(ctx context.Context, id uuid.UUID, email string) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	UpsertProfile(ctx context.Context, profile *models.Profile) error
	CreateSession(ctx context.Context, session *models.Session) error
	DeleteSession(ctx context.Context, refreshToken string) error
	DeleteSessionsByUser(ctx context.Context, userID uuid.UUID) error
	UpdateLastLoginAt(ctx context.Context, userID uuid.UUID) error
	ListSessions(ctx context.Context, userID uuid.UUID) ([]models.Session, error)
	DeleteSessionByID(ctx context.Context, sessionID uuid.UUID, userID uuid.UUID) error
}

// OTPChecker выпускает и проверяет одноразовые коды.
type OTPChecker interface {
	IssueAndSend(ctx context.Context, email, purpose string) (*models.OTPChallenge, error)
	Verify(ctx context.Context, email, code, purpose string) error
}

// WelcomeMailer отправляет приветственное письмо после активации.
type WelcomeMailer interface {
	SendWelcome(ctx context.Context, email, username string) error
}

// AuthService инкапсулирует бизнес-логику регистрации и аутентификации.
type AuthService struct {
	repo          AuthRepository
	tokenManager  *TokenManager
	otp           OTPChecker
	welcomeMailer WelcomeMailer
}

// RegisterInput содержит данные пользователя при регистрации.
type RegisterInput struct {
	Email     string
	Password  string
	Username  string
	FirstName string
	LastName  string
}

// LoginInput содержит данные для входа.
type LoginInput struct {
	Email    string
	Password string
}

// AuthResult возвращает итог регистрации или авторизации.
type AuthResult struct {
	User      *models.User
	Profile   *models.Profile
	TokenPair *TokenPair
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(repo AuthRepository, tokenManager *TokenManager, otp OTPChecker, welcomeMailer WelcomeMailer) *AuthService {
	return &AuthService{
		repo:          repo,
		tokenManager:  tokenManager,
		otp:           otp,
		welcomeMailer: welcomeMailer,
	}
}

// Register создаёт неактивного пользователя и отправляет код
// подтверждения на email. Аккаунт активируется после проверки кода.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	// Валидация email на уровне сервиса
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	email := validation.NormalizeEmail(in.Email)

	if existing, err := s.repo.GetByEmail(ctx, email); err == nil {
		if existing.IsActive {
			return nil, fmt.Errorf("auth service: email уже зарегистрирован")
		}
		// Неактивный аккаунт: повторная отправка кода, без новой записи.
		if _, err := s.otp.IssueAndSend(ctx, email, models.OTPPurposeRegistration); err != nil {
			return nil, err
		}
		return existing, nil
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	username := in.Username
	if username == "" {
		username = deriveUsername(email)
	}
	if err := validation.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth service: не удалось захешировать пароль: %w", err)
	}

	user := &models.User{
		Email:        email,
		Username:     username,
		PasswordHash: string(passHash),
		Role:         "student",
		IsActive:     false,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	avatar := models.DefaultAvatarURL(username)
	profile := &models.Profile{
		UserID:    user.ID,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		AvatarURL: &avatar,
	}

	if err := s.repo.UpsertProfile(ctx, profile); err != nil {
		return nil, err
	}

	if _, err := s.otp.IssueAndSend(ctx, email, models.OTPPurposeRegistration); err != nil {
		return nil, err
	}

	return user, nil
}

// VerifyRegistration проверяет код, активирует аккаунт и выдаёт токены.
func (s *AuthService) VerifyRegistration(ctx context.Context, email, code string, meta map[string]string) (*AuthResult, error) {
	email = validation.NormalizeEmail(email)

	if err := s.otp.Verify(ctx, email, code, models.OTPPurposeRegistration); err != nil {
		return nil, err
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if !user.IsActive {
		if err := s.repo.Activate(ctx, user.ID); err != nil {
			return nil, err
		}
		user.IsActive = true

		if s.welcomeMailer != nil {
			if err := s.welcomeMailer.SendWelcome(ctx, user.Email, user.Username); err != nil {
				// Приветственное письмо не критично для активации.
				logger.Log.WithError(err).Warn("auth service: не удалось отправить приветственное письмо")
			}
		}
	}

	return s.issueSession(ctx, user, meta)
}

// Login проверяет учётные данные и возвращает токены.
func (s *AuthService) Login(ctx context.Context, in LoginInput, meta map[string]string) (*AuthResult, error) {
	// Валидация email на уровне сервиса
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	user, err := s.repo.GetByEmail(ctx, validation.NormalizeEmail(in.Email))
	if err != nil {
		return nil, fmt.Errorf("auth service: неверный email или пароль")
	}

	// Аккаунт не активирован, пока код не подтверждён
	if !user.IsActive {
		return nil, fmt.Errorf("auth service: аккаунт не подтверждён")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return nil, fmt.Errorf("auth service: неверный email или пароль")
	}

	// Логируем ошибку, но не прерываем процесс логина
	if err := s.repo.UpdateLastLoginAt(ctx, user.ID); err != nil {
		logger.Log.WithField("user_id", user.ID).WithError(err).
			Warn("auth service: не удалось обновить last_login_at")
	}

	return s.issueSession(ctx, user, meta)
}

// issueSession выпускает пару токенов и сохраняет сессию.
func (s *AuthService) issueSession(ctx context.Context, user *models.User, meta map[string]string) (*AuthResult, error) {
	tokenPair, _, refreshExp, err := s.tokenManager.GeneratePair(user)
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		UserID:       user.ID,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresAt:    refreshExp,
	}

	if meta != nil {
		if ua, ok := meta["user_agent"]; ok {
			session.UserAgent = &ua
		}
		if ip, ok := meta["ip"]; ok {
			session.IPAddress = &ip
		}
	}

	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	profile, err := s.repo.GetProfile(ctx, user.ID)
	if err != nil {
		// Если профиль не существует, создаём дефолтный
		avatar := models.DefaultAvatarURL(user.Username)
		profile = &models.Profile{
			UserID:    user.ID,
			AvatarURL: &avatar,
		}
		if err := s.repo.UpsertProfile(ctx, profile); err != nil {
			// Не критично, если профиль не создался
			profile = nil
		}
	}

	return &AuthResult{
		User:      user,
		Profile:   profile,
		TokenPair: tokenPair,
	}, nil
}

// Refresh выпускает новую пару токенов.
func (s *AuthService) Refresh(ctx context.Context, oldToken string, meta map[string]string) (*TokenPair, error) {
	claims, err := s.tokenManager.ParseRefresh(oldToken)
	if err != nil {
		return nil, fmt.Errorf("auth service: refresh токен невалиден: %w", err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("auth service: некорректный subject: %w", err)
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	tokenPair, _, refreshExp, err := s.tokenManager.GeneratePair(user)
	if err != nil {
		return nil, err
	}

	if err := s.repo.DeleteSession(ctx, oldToken); err != nil {
		return nil, err
	}

	session := &models.Session{
		UserID:       userID,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresAt:    refreshExp,
	}

	if meta != nil {
		if ua, ok := meta["user_agent"]; ok {
			session.UserAgent = &ua
		}
		if ip, ok := meta["ip"]; ok {
			session.IPAddress = &ip
		}
	}

	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	return tokenPair, nil
}

// Logout удаляет сессию по refresh токену.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.repo.DeleteSession(ctx, refreshToken)
}

// ForgotPassword отправляет код сброса пароля, если аккаунт существует.
// Ответ одинаков для существующих и несуществующих адресов:
// наличие аккаунта не раскрывается.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	if err := validation.ValidateEmail(email); err != nil {
		return fmt.Errorf("auth service: %w", err)
	}

	email = validation.NormalizeEmail(email)

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return err
	}

	if !user.IsActive {
		return nil
	}

	if _, err := s.otp.IssueAndSend(ctx, email, models.OTPPurposePasswordReset); err != nil {
		return err
	}

	return nil
}

// ResetPassword проверяет код и устанавливает новый пароль.
// Все сессии пользователя при этом завершаются.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if err := validation.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("auth service: %w", err)
	}

	email = validation.NormalizeEmail(email)

	if err := s.otp.Verify(ctx, email, code, models.OTPPurposePasswordReset); err != nil {
		return err
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("auth service: не удалось захешировать пароль: %w", err)
	}

	if err := s.repo.UpdatePassword(ctx, user.ID, string(passHash)); err != nil {
		return err
	}

	return s.repo.DeleteSessionsByUser(ctx, user.ID)
}

// ChangePassword меняет пароль авторизованного пользователя после
// проверки текущего. Все refresh-сессии завершаются; текущий
// access-токен действует до истечения срока.
func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	if err := validation.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("auth service: %w", err)
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return fmt.Errorf("auth service: неверный текущий пароль")
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("auth service: не удалось захешировать пароль: %w", err)
	}

	if err := s.repo.UpdatePassword(ctx, user.ID, string(passHash)); err != nil {
		return err
	}

	return s.repo.DeleteSessionsByUser(ctx, user.ID)
}

// RequestEmailChange отправляет код подтверждения на новый адрес.
func (s *AuthService) RequestEmailChange(ctx context.Context, userID uuid.UUID, newEmail string) error {
	if err := validation.ValidateEmail(newEmail); err != nil {
		return fmt.Errorf("auth service: %w", err)
	}

	newEmail = validation.NormalizeEmail(newEmail)

	if _, err := s.repo.GetByEmail(ctx, newEmail); err == nil {
		return fmt.Errorf("auth service: email уже используется")
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return err
	}

	if _, err := s.repo.GetByID(ctx, userID); err != nil {
		return err
	}

	if _, err := s.otp.IssueAndSend(ctx, newEmail, models.OTPPurposeEmailChange); err != nil {
		return err
	}

	return nil
}

// ConfirmEmailChange проверяет код с нового адреса и меняет email.
func (s *AuthService) ConfirmEmailChange(ctx context.Context, userID uuid.UUID, newEmail, code string) error {
	newEmail = validation.NormalizeEmail(newEmail)

	if err := s.otp.Verify(ctx, newEmail, code, models.OTPPurposeEmailChange); err != nil {
		return err
	}

	return s.repo.UpdateEmail(ctx, userID, newEmail)
}

// DeleteAccount обезличивает аккаунт и завершает все сессии.
func (s *AuthService) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	if err := s.repo.Deactivate(ctx, userID); err != nil {
		return err
	}

	return s.repo.DeleteSessionsByUser(ctx, userID)
}

// ListSessions возвращает список активных сессий пользователя.
func (s *AuthService) ListSessions(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	return s.repo.ListSessions(ctx, userID)
}

// DeleteSession удаляет сессию по идентификатору.
func (s *AuthService) DeleteSession(ctx context.Context, sessionID uuid.UUID, userID uuid.UUID) error {
	return s.repo.DeleteSessionByID(ctx, sessionID, userID)
}

// deriveUsername формирует красивый username из email.
func deriveUsername(email string) string {
	name := strings.Split(email, "@")[0]
	name = strings.NewReplacer(".", "_", "+", "_").Replace(name)
	name = strings.ToLower(name)
	if len(name) < 3 {
		name = "user_" + uuid.NewString()[:6]
	}
	return name
}
