package validation

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// MinPasswordLength — минимальная длина пароля в символах.
const MinPasswordLength = 8

// ValidatePassword проверяет пароль: не короче MinPasswordLength
// символов, содержит заглавную и строчную буквы и цифру.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return fmt.Errorf("пароль должен быть не менее %d символов", MinPasswordLength)
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	switch {
	case !hasUpper:
		return fmt.Errorf("пароль должен содержать хотя бы одну заглавную букву")
	case !hasLower:
		return fmt.Errorf("пароль должен содержать хотя бы одну строчную букву")
	case !hasDigit:
		return fmt.Errorf("пароль должен содержать хотя бы одну цифру")
	}

	return nil
}
