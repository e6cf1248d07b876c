package dto

// RegisterRequest — запрос на регистрацию студента.
type RegisterRequest struct {
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// VerifyOTPRequest — подтверждение email кодом из письма.
type VerifyOTPRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

// ResendOTPRequest — повторная отправка кода подтверждения.
type ResendOTPRequest struct {
	Email   string `json:"email" binding:"required"`
	Purpose string `json:"purpose"`
}

// LoginRequest — вход по email и паролю.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest — обновление пары токенов.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// ForgotPasswordRequest — запрос кода для сброса пароля.
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

// ResetPasswordRequest — сброс пароля по коду.
type ResetPasswordRequest struct {
	Email       string `json:"email" binding:"required"`
	Code        string `json:"code" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// ChangePasswordRequest — смена пароля авторизованным пользователем.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// EmailChangeRequest — запрос на смену email.
type EmailChangeRequest struct {
	NewEmail string `json:"new_email" binding:"required"`
}

// ConfirmEmailChangeRequest — подтверждение смены email кодом.
type ConfirmEmailChangeRequest struct {
	NewEmail string `json:"new_email" binding:"required"`
	Code     string `json:"code" binding:"required"`
}

// UpdateProfileRequest — обновление профиля студента.
type UpdateProfileRequest struct {
	FirstName    *string `json:"first_name"`
	LastName     *string `json:"last_name"`
	Bio          *string `json:"bio"`
	Country      *string `json:"country"`
	City         *string `json:"city"`
	Institution  *string `json:"institution"`
	FieldOfStudy *string `json:"field_of_study"`
	Phone        *string `json:"phone"`
	Telegram     *string `json:"telegram"`
	Website      *string `json:"website"`
	PhotoID      *string `json:"photo_id"`
}

// CompleteModuleRequest — отметка модуля как пройденного.
type CompleteModuleRequest struct {
	QuizScore *float64 `json:"quiz_score"`
}

// CreateReviewRequest — создание отзыва о курсе.
type CreateReviewRequest struct {
	Rating  int     `json:"rating" binding:"required"`
	Comment *string `json:"comment"`
}

// UpdateReviewRequest — обновление отзыва о курсе.
type UpdateReviewRequest struct {
	Rating  int     `json:"rating" binding:"required"`
	Comment *string `json:"comment"`
}

// SimulationRunRequest — регистрация запуска симуляции.
type SimulationRunRequest struct {
	Category        string `json:"category" binding:"required"`
	Name            string `json:"name" binding:"required"`
	DurationSeconds int    `json:"duration_seconds"`
}

// NewsletterSubscribeRequest — подписка на рассылку.
type NewsletterSubscribeRequest struct {
	Email string `json:"email" binding:"required"`
}

// WaitlistRequest — заявка в лист ожидания.
type WaitlistRequest struct {
	Email    string  `json:"email" binding:"required"`
	Name     *string `json:"name"`
	Interest *string `json:"interest"`
}
