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
	MinUsernameLength        = 3
	MaxUsernameLength        = 30
	MinItemTitleLength       = 3
	MaxItemTitleLength       = 200
	MaxItemDescriptionLength = 5000
	MinCustomSpecLength      = 10
	MaxCustomSpecLength      = 5000
	MaxNoteLength            = 2000
	MaxCancelReasonLength    = 500
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

	localRegex := regexp.MustCompile(`^[a-z0-9._+-]+$`)
	if !localRegex.MatchString(localPart) {
		return fmt.Errorf("локальная часть email содержит недопустимые символы")
	}

	domainRegex := regexp.MustCompile(`^[a-z0-9.-]+\.[a-z]{2,}$`)
	if !domainRegex.MatchString(domainPart) {
		return fmt.Errorf("доменная часть email имеет некорректный формат")
	}

	return nil
}

// ValidateUsername проверяет имя пользователя.
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("имя пользователя обязательно")
	}

	username = strings.TrimSpace(username)

	if err := ValidateLength("имя пользователя", username, MinUsernameLength, MaxUsernameLength); err != nil {
		return err
	}

	usernameRegex := regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("имя пользователя может содержать только буквы, цифры и подчеркивание")
	}

	if unicode.IsDigit(rune(username[0])) {
		return fmt.Errorf("имя пользователя не может начинаться с цифры")
	}

	return nil
}

// ValidateItemTitle проверяет заголовок позиции каталога.
func ValidateItemTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("заголовок обязателен")
	}
	return ValidateLength("заголовок", strings.TrimSpace(title), MinItemTitleLength, MaxItemTitleLength)
}

// ValidateItemDescription проверяет описание позиции каталога.
func ValidateItemDescription(description string) error {
	return ValidateLength("описание", description, 0, MaxItemDescriptionLength)
}

// ValidateCustomSpec проверяет свободное описание кастомной работы.
func ValidateCustomSpec(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return fmt.Errorf("описание кастомной работы обязательно")
	}
	return ValidateLength("описание кастомной работы", strings.TrimSpace(spec), MinCustomSpecLength, MaxCustomSpecLength)
}

// ValidateNote проверяет комментарий к событию торга.
func ValidateNote(note string) error {
	return ValidateLength("комментарий", note, 0, MaxNoteLength)
}

// ValidateCancelReason проверяет причину отмены торга.
func ValidateCancelReason(reason string) error {
	return ValidateLength("причина отмены", reason, 0, MaxCancelReasonLength)
}
