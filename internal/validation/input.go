package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Константы валидации
const (
	MinUsernameLength      = 3
	MaxUsernameLength      = 30
	MaxReviewCommentLength = 2000
	MinReviewRating        = 1
	MaxReviewRating        = 5
)

// ValidateLength проверяет длину строки.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateEmail проверяет формат email.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email обязателен")
	}

	email = strings.TrimSpace(email)
	email = strings.ToLower(email)

	// Базовая проверка формата
	if !strings.Contains(email, "@") {
		return fmt.Errorf("email должен содержать символ @")
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return fmt.Errorf("некорректный формат email")
	}

	localPart := parts[0]
	domainPart := parts[1]

	if len(localPart) == 0 || len(localPart) > 64 {
		return fmt.Errorf("локальная часть email должна быть от 1 до 64 символов")
	}

	if len(domainPart) == 0 || len(domainPart) > 255 {
		return fmt.Errorf("доменная часть email должна быть от 1 до 255 символов")
	}

	if !strings.Contains(domainPart, ".") {
		return fmt.Errorf("доменная часть email должна содержать точку")
	}

	// Проверка на валидные символы в локальной части
	emailRegex := regexp.MustCompile(`^[a-z0-9._+-]+$`)
	if !emailRegex.MatchString(localPart) {
		return fmt.Errorf("локальная часть email содержит недопустимые символы")
	}

	// Проверка на валидные символы в доменной части
	domainRegex := regexp.MustCompile(`^[a-z0-9.-]+\.[a-z]{2,}$`)
	if !domainRegex.MatchString(domainPart) {
		return fmt.Errorf("доменная часть email имеет некорректный формат")
	}

	return nil
}

// NormalizeEmail приводит email к каноническому виду для хранения и поиска.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateUsername проверяет имя пользователя.
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("имя пользователя обязательно")
	}

	username = strings.TrimSpace(username)

	// Проверка длины
	if err := ValidateLength("имя пользователя", username, MinUsernameLength, MaxUsernameLength); err != nil {
		return err
	}

	// Проверка на допустимые символы (только буквы, цифры и подчеркивание)
	usernameRegex := regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("имя пользователя может содержать только буквы, цифры и подчеркивание")
	}

	// Проверка, что не начинается с цифры
	if len(username) > 0 && unicode.IsDigit(rune(username[0])) {
		return fmt.Errorf("имя пользователя не может начинаться с цифры")
	}

	return nil
}

// ValidateOTPCode проверяет, что код состоит только из цифр ожидаемой длины.
func ValidateOTPCode(code string, length int) error {
	if code == "" {
		return fmt.Errorf("код подтверждения обязателен")
	}

	if utf8.RuneCountInString(code) != length {
		return fmt.Errorf("код подтверждения должен состоять из %d цифр", length)
	}

	for _, r := range code {
		if !unicode.IsDigit(r) {
			return fmt.Errorf("код подтверждения должен содержать только цифры")
		}
	}

	return nil
}

// ValidateReviewRating проверяет оценку отзыва.
func ValidateReviewRating(rating int) error {
	if rating < MinReviewRating || rating > MaxReviewRating {
		return fmt.Errorf("оценка должна быть от %d до %d", MinReviewRating, MaxReviewRating)
	}
	return nil
}

// ValidateReviewComment проверяет текст отзыва.
func ValidateReviewComment(comment string) error {
	return ValidateLength("текст отзыва", comment, 0, MaxReviewCommentLength)
}

// ValidateQuizScore проверяет результат теста.
func ValidateQuizScore(score float64) error {
	if score < 0 || score > 100 {
		return fmt.Errorf("результат теста должен быть от 0 до 100")
	}
	return nil
}
